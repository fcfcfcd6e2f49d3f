package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/waggle-io/waggle/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wagglectl tickets <list|show|create|move|assign|block>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			requireArg(3, "wagglectl tickets show <id>")
			cmdTicketsShow(os.Args[3])
		case "create":
			cmdTicketsCreate(os.Args[3:])
		case "move":
			requireArg(4, "wagglectl tickets move <id> <status> [--actor a]")
			cmdTicketsMove(os.Args[3], os.Args[4], os.Args[5:])
		case "assign":
			requireArg(4, "wagglectl tickets assign <id> <agent> [--actor a]")
			cmdTicketsAssign(os.Args[3], os.Args[4], os.Args[5:])
		case "block":
			requireArg(3, "wagglectl tickets block <id> --reason r [--kind human|supervisor]")
			cmdTicketsBlock(os.Args[3], os.Args[4:])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "backlog":
		cmdBacklog()
	case "workload":
		requireArg(2, "wagglectl workload <agent-id>")
		cmdWorkload(os.Args[2])
	case "deadlines":
		cmdDeadlines(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: wagglectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func requireArg(n int, usage string) {
	if len(os.Args) <= n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

// --- commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (backlog|ready|in_progress|blocked|in_review|done)")
	agentID := fs.String("agent", "", "Filter by assignee")
	creator := fs.String("creator", "", "Filter by creator")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + *status
	}
	if *agentID != "" {
		query += "&assigned_to=" + *agentID
	}
	if *creator != "" {
		query += "&created_by=" + *creator
	}

	body, err := apiGet("/api/tickets" + query)
	if err != nil {
		fatal(err)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		assignee, _ := t["assigned_to"].(string)
		if assignee == "" {
			assignee = "-"
		}
		fmt.Printf("%-38s %-12s %-8s %-12s %s\n", t["id"], t["status"], t["priority"], assignee, t["title"])
	}
}

func cmdTicketsShow(id string) {
	body, err := apiGet("/api/tickets/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsCreate(args []string) {
	fs := flag.NewFlagSet("tickets create", flag.ExitOnError)
	title := fs.String("title", "", "Ticket title (required)")
	desc := fs.String("desc", "", "Description")
	typ := fs.String("type", "", "Type (feature|task|bug|spike)")
	priority := fs.String("priority", "", "Priority (low|medium|high|critical)")
	creator := fs.String("creator", envOr("WAGGLE_ACTOR", "wagglectl"), "Creating agent ID")
	due := fs.String("due", "", "Due date (RFC3339)")
	fs.Parse(args)

	if *title == "" {
		fmt.Fprintln(os.Stderr, "error: --title is required")
		os.Exit(1)
	}

	payload := map[string]any{
		"title":      *title,
		"created_by": *creator,
	}
	if *desc != "" {
		payload["description"] = *desc
	}
	if *typ != "" {
		payload["type"] = *typ
	}
	if *priority != "" {
		payload["priority"] = *priority
	}
	if *due != "" {
		if _, err := time.Parse(time.RFC3339, *due); err != nil {
			fmt.Fprintf(os.Stderr, "error: --due must be RFC3339: %v\n", err)
			os.Exit(1)
		}
		payload["due_date"] = *due
	}

	body, err := apiPost("/api/tickets", payload)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsMove(id, status string, args []string) {
	fs := flag.NewFlagSet("tickets move", flag.ExitOnError)
	actor := fs.String("actor", envOr("WAGGLE_ACTOR", "wagglectl"), "Acting agent ID")
	fs.Parse(args)

	body, err := apiPost("/api/tickets/"+id+"/status", map[string]any{
		"status": status,
		"actor":  *actor,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsAssign(id, agent string, args []string) {
	fs := flag.NewFlagSet("tickets assign", flag.ExitOnError)
	actor := fs.String("actor", envOr("WAGGLE_ACTOR", "wagglectl"), "Acting agent ID")
	fs.Parse(args)

	if agent == "-" {
		agent = "" // unassign
	}
	body, err := apiPost("/api/tickets/"+id+"/assignee", map[string]any{
		"assignee": agent,
		"actor":    *actor,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsBlock(id string, args []string) {
	fs := flag.NewFlagSet("tickets block", flag.ExitOnError)
	reason := fs.String("reason", "", "Why the ticket is blocked (required)")
	kind := fs.String("kind", "human", "Attention requested: human or supervisor")
	reporter := fs.String("reporter", envOr("WAGGLE_ACTOR", "wagglectl"), "Reporting agent ID")
	fs.Parse(args)

	if *reason == "" {
		fmt.Fprintln(os.Stderr, "error: --reason is required")
		os.Exit(1)
	}

	body, err := apiPost("/api/tickets/"+id+"/block", map[string]any{
		"reason":   *reason,
		"kind":     *kind,
		"reporter": *reporter,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdBacklog() {
	body, err := apiGet("/api/backlog")
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdWorkload(agentID string) {
	body, err := apiGet("/api/agents/" + agentID + "/workload")
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdDeadlines(args []string) {
	fs := flag.NewFlagSet("deadlines", flag.ExitOnError)
	days := fs.Int("days", 7, "Horizon in days")
	fs.Parse(args)

	body, err := apiGet(fmt.Sprintf("/api/deadlines?days=%d", *days))
	if err != nil {
		fatal(err)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	if len(tickets) == 0 {
		fmt.Println("no upcoming deadlines")
		return
	}
	for _, t := range tickets {
		fmt.Printf("%-38s %-12s due %s  %s\n", t["id"], t["status"], t["due_date"], t["title"])
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return apiDo("POST", path, bytes.NewReader(data))
}

func apiDo(method, path string, body io.Reader) ([]byte, error) {
	base := envOr("WAGGLE_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("WAGGLE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("wagglectl - swarm coordination CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                        Check daemon health")
	fmt.Println("  tickets list                  List tickets (--status, --agent, --creator, --limit)")
	fmt.Println("  tickets show <id>             Show ticket details")
	fmt.Println("  tickets create                Create a ticket (--title, --desc, --type, --priority, --due)")
	fmt.Println("  tickets move <id> <status>    Transition a ticket (--actor)")
	fmt.Println("  tickets assign <id> <agent>   Assign a ticket; use '-' to unassign (--actor)")
	fmt.Println("  tickets block <id>            Block an in-progress ticket (--reason, --kind, --reporter)")
	fmt.Println("  backlog                       Show backlog summary")
	fmt.Println("  workload <agent-id>           Show an agent's workload")
	fmt.Println("  deadlines                     List tickets due soon (--days)")
	fmt.Println("  logs                          Tail daemon logs (--level, --limit)")
	fmt.Println("  config validate <path>        Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  WAGGLE_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  WAGGLE_API_KEY   API key for authentication")
	fmt.Println("  WAGGLE_ACTOR     Default acting agent ID")
}
