package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"kestrel/internal/conf"
	"kestrel/internal/sender"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	from := flag.String("from", "", "Envelope sender address")
	to := flag.String("to", "", "Comma-separated recipient addresses")
	file := flag.String("file", "-", "Message file, - for stdin")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var cfg *conf.Config
	var err error
	if *configPath != "" {
		cfg, err = conf.LoadConfigFile(*configPath)
	} else {
		cfg, err = conf.LoadConfig()
	}
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	recipients := splitRecipients(*to)
	if *from == "" || len(recipients) == 0 {
		logger.Fatal("Both -from and -to are required")
	}

	content, err := readMessage(*file)
	if err != nil {
		logger.Fatalf("Failed to read message: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	provider, err := sender.New(ctx, cfg.Sender, logger)
	if err != nil {
		logger.Fatalf("Failed to build sender: %v", err)
	}

	if err := provider.Send(ctx, *from, recipients, content); err != nil {
		logger.Fatalf("Delivery failed: %v", err)
	}
	logger.Printf("Delivered %d bytes to %s", len(content), strings.Join(recipients, ", "))
}

func splitRecipients(raw string) []string {
	recipients := []string{}
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

func readMessage(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	return os.ReadFile(path)
}
