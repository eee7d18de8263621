package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/config"
	"github.com/kushscan/kushscan/internal/agent"
	"github.com/kushscan/kushscan/internal/detector"
	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/relay"
	"github.com/kushscan/kushscan/internal/store"
	"github.com/kushscan/kushscan/internal/watcher"
)

var (
	cfg *config.Config

	detectURL string
)

var rootCmd = &cobra.Command{
	Use:   "kushscan-agent",
	Short: "Local companion hosting the KushScan client pipeline",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the messaging relay and detection pipeline",
	RunE:  runAgent,
}

var detectCmd = &cobra.Command{
	Use:   "detect [html-file]",
	Short: "Run the parser chain and insight pipeline on a captured page",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all local state (identity, cache, usage counters)",
	RunE:  runReset,
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)

	detectCmd.Flags().StringVar(&detectURL, "url", "", "page URL the capture came from")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(resetCmd)
}

// capture holds the most recent page snapshot posted by the extension.
type capture struct {
	mu   sync.Mutex
	url  string
	html string
}

func (c *capture) set(url, markup string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	c.html = markup
}

func (c *capture) get() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url, c.html
}

// detectionSettled decides whether the retry watch should stop. Only "no
// product on the page yet" keeps it running: once a record was parsed the
// page is settled, and an insight failure (quota denial included) is the
// panel's to display, never retried automatically.
func detectionSettled(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, domain.ErrNoProduct)
}

func runAgent(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(cfg.Agent.DataDir)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer st.Close()

	installationID, err := st.InstallationID()
	if err != nil {
		return fmt.Errorf("resolving installation identity: %w", err)
	}
	log.Printf("[Agent] installation %s", installationID)

	state := detector.NewState()
	hub := relay.NewHub(state.Current)
	api := agent.NewAPIClient(cfg.Agent.ServerURL, 0)
	pipeline := agent.NewPipeline(detector.NewChain(), state, st, api, hub, cfg.Cache.ClientTTL)

	latest := &capture{}
	detect := func() bool {
		pageURL, markup := latest.get()
		if markup == "" {
			return false
		}
		doc, err := html.Parse(strings.NewReader(markup))
		if err != nil {
			log.Printf("[Agent] bad capture for %s: %v", pageURL, err)
			return false
		}
		_, err = pipeline.HandleDocument(context.Background(), doc, pageURL)
		if err != nil && !errors.Is(err, domain.ErrNoProduct) {
			log.Printf("[Agent] detection on %s: %v", pageURL, err)
		}
		return detectionSettled(err)
	}

	w := watcher.New(watcher.Config{
		SettleDelay: cfg.Agent.SettleDelay,
		WatchWindow: cfg.Agent.WatchWindow,
		Detect:      detect,
		OnNavigate:  pipeline.OnNavigate,
	})
	defer w.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/capture", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			URL  string `json:"url"`
			HTML string `json:"html"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, "invalid body", http.StatusBadRequest)
			return
		}
		latest.set(body.URL, body.HTML)
		w.Start(body.URL)
		w.OnMutation(body.URL)
		rw.WriteHeader(http.StatusAccepted)
	})

	log.Printf("[Agent] relay listening on %s", cfg.Agent.RelayAddr)
	return http.ListenAndServe(cfg.Agent.RelayAddr, mux)
}

func runDetect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing capture: %w", err)
	}

	st, err := store.NewStore(cfg.Agent.DataDir)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer st.Close()

	api := agent.NewAPIClient(cfg.Agent.ServerURL, 0)
	pipeline := agent.NewPipeline(detector.NewChain(), detector.NewState(), st, api, nil, cfg.Cache.ClientTTL)

	insight, err := pipeline.HandleDocument(context.Background(), doc, detectURL)
	if errors.Is(err, domain.ErrNoProduct) {
		cmd.Println("No product found on this page.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	out, err := json.MarshalIndent(insight, "", "  ")
	if err != nil {
		return fmt.Errorf("rendering insight: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	dataDir := cfg.Agent.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kushscan", "data")
	}

	removed := false
	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := filepath.Join(dataDir, "kushscan.db"+suffix)
		err := os.Remove(path)
		if err == nil {
			removed = true
			continue
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	if removed {
		cmd.Println("Local state cleared.")
	} else {
		cmd.Println("No local state to clear.")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
