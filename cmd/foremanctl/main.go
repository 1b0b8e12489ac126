// foremanctl is the operator CLI for a running foreman server. Every command
// talks to the HTTP API; nothing here touches storage directly.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Exit codes surface the error taxonomy to shell callers.
const (
	exitOK               = 0
	exitGeneric          = 1
	exitProfileNotFound  = 2
	exitPermissionDenied = 3
	exitCycleDetected    = 4
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var (
	serverURL  string
	agentID    string
	adminToken string
)

var rootCmd = &cobra.Command{
	Use:           "foremanctl",
	Short:         "Operator CLI for the foreman delegation server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("FOREMAN_SERVER", "http://localhost:8700"), "foreman API base URL")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent-id", "foremanctl", "value for the X-Agent-ID header")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", os.Getenv("FOREMAN_ADMIN_TOKEN"), "bearer token for admin endpoints")

	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(workloadCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(delegateCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitGeneric)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func ticketCmd() *cobra.Command {
	t := &cobra.Command{Use: "ticket", Short: "Manage tickets"}
	t.AddCommand(ticketCreateCmd())
	t.AddCommand(ticketListCmd())
	t.AddCommand(ticketShowCmd())
	t.AddCommand(ticketTransitionCmd())
	return t
}

func ticketCreateCmd() *cobra.Command {
	var title, description, priority, agent, parent string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"title":       title,
				"description": description,
				"priority":    priority,
				"agent_type":  agent,
			}
			if parent != "" {
				body["parent_id"] = parent
			}
			data, err := apiPost("/api/v1/tickets", body)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low, medium, high, critical")
	cmd.Flags().StringVar(&agent, "agent", "", "agent role the ticket belongs to")
	cmd.Flags().StringVar(&parent, "parent", "", "parent ticket id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ticketListCmd() *cobra.Command {
	var status, priority, agent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := []string{}
			if status != "" {
				q = append(q, "status="+status)
			}
			if priority != "" {
				q = append(q, "priority="+priority)
			}
			if agent != "" {
				q = append(q, "agent="+agent)
			}
			path := "/api/v1/tickets"
			if len(q) > 0 {
				path += "?" + strings.Join(q, "&")
			}
			data, err := apiGet(path)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&agent, "agent", "", "agent filter")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	var updates bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a ticket, optionally with its update log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/tickets/" + args[0]
			if updates {
				path += "/updates"
			}
			data, err := apiGet(path)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().BoolVar(&updates, "updates", false, "show the append-only update log")
	return cmd
}

func ticketTransitionCmd() *cobra.Command {
	var status, note string
	cmd := &cobra.Command{
		Use:   "transition <id>",
		Short: "Move a ticket through its status machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := apiDo("PATCH", "/api/v1/tickets/"+args[0], map[string]string{
				"status": status,
				"note":   note,
			})
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	cmd.Flags().StringVar(&note, "note", "", "log note")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func workloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workload [agent]",
		Short: "Show open work per agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/workload"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			data, err := apiGet(path)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <role> <category-or-path>",
		Short: "Check whether a role may touch a file category or path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"role": args[0]}
			// anything that looks like a filename is classified server-side
			if strings.ContainsAny(args[1], "/.*") {
				body["path"] = args[1]
			} else {
				body["category"] = args[1]
			}
			data, err := apiPost("/api/v1/enforcement/check", body)
			if err != nil {
				return err
			}
			var d struct {
				Allowed  bool   `json:"allowed"`
				Severity string `json:"severity"`
				Reason   string `json:"reason"`
			}
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			if err := printJSON(data); err != nil {
				return err
			}
			if !d.Allowed {
				return &exitError{code: exitPermissionDenied, msg: d.Reason}
			}
			return nil
		},
	}
}

func delegateCmd() *cobra.Command {
	var agent, description, priority, tier, taskID string
	var requirements, deliverables []string
	var wait bool
	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Submit a delegation",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"agent_type":       agent,
				"task_description": description,
				"requirements":     requirements,
				"deliverables":     deliverables,
				"priority":         priority,
				"resource_tier":    tier,
				"task_id":          taskID,
			}
			data, err := apiPost("/api/v1/delegations", body)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(data)
			}

			var accepted struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(data, &accepted); err != nil {
				return err
			}
			for {
				data, err = apiGet("/api/v1/delegations/" + accepted.ID)
				if err != nil {
					return err
				}
				var res struct {
					Status string `json:"status"`
				}
				if err := json.Unmarshal(data, &res); err != nil {
					return err
				}
				switch res.Status {
				case "queued", "running":
					time.Sleep(500 * time.Millisecond)
					continue
				}
				return printJSON(data)
			}
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent role to delegate to")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringArrayVar(&requirements, "requirement", nil, "requirement (repeatable)")
	cmd.Flags().StringArrayVar(&deliverables, "deliverable", nil, "deliverable (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high, critical")
	cmd.Flags().StringVar(&tier, "tier", "", "explicit resource tier override")
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id for delegation chain tracking")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the delegation finishes")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List registered agent roles (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := apiGet("/api/v1/roles")
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache and queue statistics (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := apiGet("/api/v1/stats")
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func apiGet(path string) ([]byte, error)            { return apiDo("GET", path, nil) }
func apiPost(path string, body any) ([]byte, error) { return apiDo("POST", path, body) }

func apiDo(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Agent-ID", agentID)
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, classifyError(resp.StatusCode, data)
	}
	return data, nil
}

// classifyError maps API failures onto the CLI exit codes.
func classifyError(status int, body []byte) error {
	var parsed struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error
	if msg == "" {
		msg = fmt.Sprintf("server returned %d", status)
	}

	switch {
	case status == http.StatusNotFound && strings.Contains(msg, "profile"):
		return &exitError{code: exitProfileNotFound, msg: msg}
	case status == http.StatusConflict && strings.Contains(msg, "cycle"):
		return &exitError{code: exitCycleDetected, msg: msg}
	case status == http.StatusForbidden:
		return &exitError{code: exitPermissionDenied, msg: msg}
	}
	return &exitError{code: exitGeneric, msg: msg}
}

func printJSON(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
