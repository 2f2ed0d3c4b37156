package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

type stats struct {
	ShortTermItems int `json:"shortTermItems"`
	LongTermItems  int `json:"longTermItems"`
	EpisodicItems  int `json:"episodicItems"`
	SemanticItems  int `json:"semanticItems"`
}

// agentStats is either a stats object or {"error": ...}.
type agentStats struct {
	stats
	Error string `json:"error,omitempty"`
}

var rootCmd = &cobra.Command{
	Use:   "memstat",
	Short: "memstat - inspect marketing agent memory",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-agent memory stats",
	RunE:  runStats,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream stats over the dashboard WebSocket",
	RunE:  runWatch,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [agent]",
	Short: "Consolidate one agent, or all agents when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runPass("consolidate", args) },
}

var compressCmd = &cobra.Command{
	Use:   "compress [agent]",
	Short: "Compress one agent, or all agents when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runPass("compress", args) },
}

var shareCmd = &cobra.Command{
	Use:   "share <agent>",
	Short: "Copy an agent's confident knowledge to every other agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAndPrint(serverFlag + "/api/orchestrator/share/" + args[0])
	},
}

var (
	serverFlag   string
	intervalFlag time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "http://localhost:8080", "memory service URL")
	statsCmd.Flags().DurationVarP(&intervalFlag, "interval", "i", 0, "poll interval; 0 prints once")
	rootCmd.AddCommand(statsCmd, watchCmd, consolidateCmd, compressCmd, shareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	for {
		if err := printDashboard(serverFlag); err != nil {
			if intervalFlag == 0 {
				return err
			}
			printError("%v", err)
		}
		if intervalFlag == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(intervalFlag):
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := watchStats(ctx, serverFlag); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runPass(op string, args []string) error {
	url := serverFlag + "/api/orchestrator/" + op
	if len(args) == 1 {
		url = serverFlag + "/api/agents/" + args[0] + "/" + op
	}
	return postAndPrint(url)
}

func postAndPrint(url string) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, out)
	}
	fmt.Println(string(out))
	return nil
}

func printDashboard(server string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(server + "/api/dashboard/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	var dash map[string]agentStats
	if err := json.NewDecoder(resp.Body).Decode(&dash); err != nil {
		return fmt.Errorf("parse stats: %w", err)
	}
	ids := make([]string, 0, len(dash))
	for id := range dash {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%s\n", time.Now().Format(time.TimeOnly))
	fmt.Printf("  %-24s %10s %10s %10s %10s\n", "AGENT", "SHORT", "LONG", "EPISODIC", "SEMANTIC")
	for _, id := range ids {
		s := dash[id]
		if s.Error != "" {
			fmt.Printf("  %-24s \033[31m%s\033[0m\n", id, s.Error)
			continue
		}
		fmt.Printf("  %-24s %10d %10d %10d %10d\n", id,
			s.ShortTermItems, s.LongTermItems, s.EpisodicItems, s.SemanticItems)
	}
	return nil
}

func watchStats(ctx context.Context, server string) error {
	url := "ws" + strings.TrimPrefix(server, "http") + "/api/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", url)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg struct {
			Type    string `json:"type"`
			AgentID string `json:"agent_id"`
			Kind    string `json:"kind"`
			Stats   *stats `json:"stats"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.Type != "stats" {
			continue
		}
		label := msg.Kind
		if label == "" {
			label = "snapshot"
		}
		if msg.Stats == nil {
			fmt.Printf("[%s] %-24s %-13s \033[31m%s\033[0m\n", time.Now().Format(time.TimeOnly), msg.AgentID, label, msg.Error)
			continue
		}
		fmt.Printf("[%s] %-24s %-13s short=%d long=%d episodic=%d semantic=%d\n",
			time.Now().Format(time.TimeOnly), msg.AgentID, label,
			msg.Stats.ShortTermItems, msg.Stats.LongTermItems, msg.Stats.EpisodicItems, msg.Stats.SemanticItems)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
