package main

import (
	"flag"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	nodes := flag.String("nodes", "http://127.0.0.1:8081,http://127.0.0.1:8082,http://127.0.0.1:8083", "Comma-separated admin URLs")
	interval := flag.Duration("interval", time.Second, "Poll interval")
	flag.Parse()

	var urls []string
	for _, u := range strings.Split(*nodes, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		log.Fatal("no nodes given")
	}

	p := tea.NewProgram(initialModel(urls, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
