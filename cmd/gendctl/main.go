package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gend/pkg/types"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	server := os.Getenv("GEND_SERVER")
	if server == "" {
		server = "http://127.0.0.1:8080"
	}
	root := &cobra.Command{
		Use:           "gendctl",
		Short:         "Operator CLI for the gend generation gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "gend server base URL (defaults GEND_SERVER)")
	cli := func() *client { return newClient(server) }

	enginesCmd := &cobra.Command{Use: "engines", Short: "List catalog engines", Example: "  gendctl engines --modality image", RunE: func(cmd *cobra.Command, args []string) error {
		modality, _ := cmd.Flags().GetString("modality")
		var out struct {
			Engines []types.EngineHandle `json:"engines"`
		}
		path := "/engines"
		if modality != "" {
			path += "?modality=" + modality
		}
		if err := cli().getJSON(path, &out); err != nil {
			return err
		}
		for _, h := range out.Engines {
			fmt.Printf("%-28s %-6s %-8s %-8s %s\n", h.ID, h.Kind, h.Modality, h.Tier, h.Provider)
		}
		return nil
	}}
	enginesCmd.Flags().String("modality", "", "Filter by modality: text|image|3d")
	root.AddCommand(enginesCmd)

	statusCmd := &cobra.Command{Use: "status", Short: "Show server status", RunE: func(cmd *cobra.Command, args []string) error {
		var st types.StatusResponse
		if err := cli().getJSON("/status", &st); err != nil {
			return err
		}
		fmt.Printf("capacity: %d/%d  loads: %d  evictions: %d  sessions: %d  jobs: %d  uptime: %ds\n",
			st.CapacityUsed, st.CapacityBudget, st.LoadsTotal, st.EvictionsTotal, st.ActiveSessions, st.ActiveJobs, st.UptimeSeconds)
		for _, e := range st.Engines {
			pin := ""
			if e.Pinned {
				pin = " pinned"
			}
			fmt.Printf("%-28s %-6s %-10s queue=%d/%d inflight=%d%s\n", e.EngineID, e.Kind, e.State, e.QueueLen, e.MaxQueueDepth, e.Inflight, pin)
		}
		return nil
	}}
	root.AddCommand(statusCmd)

	genCmd := &cobra.Command{Use: "generate [input...]", Short: "Dispatch a generation request and stream events", Example: "  gendctl generate --model tinyllama-q4 \"write a haiku\"\n  gendctl generate --policy free-only --session abc \"continue\"", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		policy, _ := cmd.Flags().GetString("policy")
		modality, _ := cmd.Flags().GetString("modality")
		sessionID, _ := cmd.Flags().GetString("session")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		raw, _ := cmd.Flags().GetBool("raw")
		req := types.GenerateRequest{
			Model:     model,
			Policy:    types.SelectionPolicy(policy),
			Modality:  types.Modality(modality),
			SessionID: sessionID,
			Input:     strings.Join(args, " "),
			Stream:    true,
			MaxTokens: maxTokens,
		}
		return cli().stream("/generate", req, !raw)
	}}
	genCmd.Flags().String("model", "", "Explicit engine id (implies explicit policy)")
	genCmd.Flags().String("policy", "", "Selection policy: explicit|auto|free-only|commercial-only")
	genCmd.Flags().String("modality", "", "Requested modality: text|image|3d")
	genCmd.Flags().String("session", "", "Session id to continue")
	genCmd.Flags().Int("max-tokens", 0, "Token cap for the response")
	genCmd.Flags().Bool("raw", false, "Print raw NDJSON events instead of rendered text")
	root.AddCommand(genCmd)

	cancelCmd := &cobra.Command{Use: "cancel <request-id>", Short: "Cancel an in-flight or queued request", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return cli().postJSON("/requests/"+args[0]+"/cancel", nil, nil)
	}}
	root.AddCommand(cancelCmd)

	queueCmd := &cobra.Command{Use: "queue <request-id>", Short: "Show queue position for a request", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var qs types.QueueStatus
		if err := cli().getJSON("/requests/"+args[0]+"/queue", &qs); err != nil {
			return err
		}
		fmt.Printf("request=%s engine=%s state=%s position=%d\n", qs.RequestID, qs.Engine, qs.State, qs.Position)
		return nil
	}}
	root.AddCommand(queueCmd)

	// sessions group
	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Inspect and manage sessions", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("sessions requires a subcommand: list|show|close|title|regen")
	}}
	sessionsList := &cobra.Command{Use: "list", Short: "List sessions", RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Sessions []types.Session `json:"sessions"`
		}
		if err := cli().getJSON("/sessions", &out); err != nil {
			return err
		}
		for _, s := range out.Sessions {
			fmt.Printf("%-38s %-30q turns=%d active=%v updated=%s\n", s.ID, s.Title, len(s.Turns), s.Active, fmtUnix(s.UpdatedAt))
		}
		return nil
	}}
	sessionsShow := &cobra.Command{Use: "show <session-id>", Short: "Show one session transcript", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var s types.Session
		if err := cli().getJSON("/sessions/"+args[0], &s); err != nil {
			return err
		}
		fmt.Printf("id=%s title=%q active=%v\n", s.ID, s.Title, s.Active)
		for _, turn := range s.Turns {
			fmt.Printf("%s: %s\n", turn.Role, turn.Content)
		}
		return nil
	}}
	sessionsClose := &cobra.Command{Use: "close <session-id>", Short: "Close a session", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return cli().postJSON("/sessions/"+args[0]+"/close", nil, nil)
	}}
	sessionsTitle := &cobra.Command{Use: "title <session-id> <title>", Short: "Set a session title", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		return cli().postJSON("/sessions/"+args[0]+"/title", map[string]string{"title": args[1]}, nil)
	}}
	sessionsRegen := &cobra.Command{Use: "regen <session-id>", Short: "Regenerate the last assistant reply", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		return cli().stream("/sessions/"+args[0]+"/regenerate", types.GenerateRequest{Stream: true}, !raw)
	}}
	sessionsRegen.Flags().Bool("raw", false, "Print raw NDJSON events instead of rendered text")
	sessionsCmd.AddCommand(sessionsList, sessionsShow, sessionsClose, sessionsTitle, sessionsRegen)
	root.AddCommand(sessionsCmd)

	// jobs group
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Manage model download jobs", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("jobs requires a subcommand: submit|list|status|cancel")
	}}
	jobsSubmit := &cobra.Command{Use: "submit <model-id> <source-uri>", Short: "Submit a model download", Example: "  gendctl jobs submit tinyllama https://example.com/tinyllama.gguf", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		sourceType, _ := cmd.Flags().GetString("source-type")
		var out struct {
			JobID string `json:"job_id"`
		}
		req := types.SubmitDownloadRequest{ModelID: args[0], SourceType: sourceType, SourceURI: args[1]}
		if err := cli().postJSON("/jobs", req, &out); err != nil {
			return err
		}
		fmt.Println(out.JobID)
		return nil
	}}
	jobsSubmit.Flags().String("source-type", "http", "Source type: http|file")
	jobsList := &cobra.Command{Use: "list", Short: "List download jobs", RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Jobs []types.DownloadJob `json:"jobs"`
		}
		if err := cli().getJSON("/jobs", &out); err != nil {
			return err
		}
		for _, j := range out.Jobs {
			fmt.Printf("%-38s %-24s %-10s %3d%% %s\n", j.ID, j.ModelID, j.Status, j.Progress, j.Error)
		}
		return nil
	}}
	jobsStatus := &cobra.Command{Use: "status <job-id>", Short: "Show one download job", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var j types.DownloadJob
		if err := cli().getJSON("/jobs/"+args[0], &j); err != nil {
			return err
		}
		fmt.Printf("id=%s model=%s status=%s progress=%d%% source=%s %s\n", j.ID, j.ModelID, j.Status, j.Progress, j.SourceURI, j.Error)
		return nil
	}}
	jobsCancel := &cobra.Command{Use: "cancel <job-id>", Short: "Cancel a download job", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return cli().postJSON("/jobs/"+args[0]+"/cancel", nil, nil)
	}}
	jobsCmd.AddCommand(jobsSubmit, jobsList, jobsStatus, jobsCancel)
	root.AddCommand(jobsCmd)

	return root
}
