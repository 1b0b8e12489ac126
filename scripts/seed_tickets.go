// seed_tickets.go — standalone script to parse a WORKPLAN.md and open tickets
// via the Foreman API.
//
// Usage:
//
//	go run scripts/seed_tickets.go -plan /path/to/WORKPLAN.md -api http://localhost:8700 -agent system
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

type ticketItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
}

// Priority emoji to ticket priority mapping
var priorityMap = map[string]string{
	"🔴": "critical",
	"🟠": "high",
	"🟡": "medium",
	"🟢": "low",
}

// Sections to skip
var skipSections = map[string]bool{
	"done":     true,
	"shipped":  true,
	"archive":  true,
	"rejected": true,
}

func main() {
	planPath := flag.String("plan", "WORKPLAN.md", "path to work plan file")
	apiURL := flag.String("api", "http://localhost:8700", "Foreman API base URL")
	agentID := flag.String("agent", "system", "X-Agent-ID header value")
	dryRun := flag.Bool("dry-run", false, "print tickets without posting")
	flag.Parse()

	f, err := os.Open(*planPath)
	if err != nil {
		log.Fatalf("open work plan: %v", err)
	}
	defer f.Close()

	var items []ticketItem
	var currentSection string
	var skipCurrent bool
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()

		// Detect section headers
		if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "# ") {
			header := strings.TrimLeft(line, "# ")
			header = strings.TrimSpace(header)
			currentSection = strings.ToLower(header)

			skipCurrent = false
			for skip := range skipSections {
				if strings.Contains(currentSection, skip) {
					skipCurrent = true
					break
				}
			}
			continue
		}

		if skipCurrent {
			continue
		}

		// Parse open items only: - [ ]
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ] ") {
			continue
		}
		text := strings.TrimPrefix(trimmed, "- [ ] ")

		priority := "medium"
		for emoji, p := range priorityMap {
			if strings.Contains(text, emoji) {
				priority = p
				text = strings.ReplaceAll(text, emoji, "")
				text = strings.TrimSpace(text)
				break
			}
		}

		items = append(items, ticketItem{
			Title:     text,
			Priority:  priority,
			AgentType: deriveRole(currentSection),
		})
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("scan work plan: %v", err)
	}

	log.Printf("parsed %d open items from %s", len(items), *planPath)

	if *dryRun {
		for i, item := range items {
			fmt.Printf("[%d] %s (agent=%s, priority=%s)\n", i+1, item.Title, item.AgentType, item.Priority)
		}
		return
	}

	client := &http.Client{}
	created, skipped := 0, 0
	for _, item := range items {
		body, _ := json.Marshal(item)
		req, err := http.NewRequest("POST", *apiURL+"/api/v1/tickets", bytes.NewReader(body))
		if err != nil {
			log.Printf("skip %q: %v", item.Title, err)
			skipped++
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Agent-ID", *agentID)

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("skip %q: %v", item.Title, err)
			skipped++
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			created++
		} else {
			log.Printf("skip %q: status %d", item.Title, resp.StatusCode)
			skipped++
		}
	}

	log.Printf("done: %d created, %d skipped", created, skipped)
}

// deriveRole maps a work plan section onto the agent role that owns it.
func deriveRole(section string) string {
	section = strings.ToLower(section)
	switch {
	case strings.Contains(section, "test") || strings.Contains(section, "qa"):
		return "qa"
	case strings.Contains(section, "doc"):
		return "documentation"
	case strings.Contains(section, "deploy") || strings.Contains(section, "ops") || strings.Contains(section, "infra"):
		return "devops"
	case strings.Contains(section, "design") || strings.Contains(section, "architecture"):
		return "architect"
	default:
		return "engineer"
	}
}
