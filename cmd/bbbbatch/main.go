// Command bbbbatch reads a newline-separated list of playback URLs and
// runs the reconstruction once per line, appending each URL to
// successful.txt or failed.txt as it goes so an interrupted batch leaves
// a record of which URLs finished. A re-run processes every URL in the
// list again; it does not consult the log files.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bbbrecorder/bbbrecorder/internal/config"
	"github.com/bbbrecorder/bbbrecorder/internal/orchestrator"
)

func main() {
	var listPath string
	var logDir string
	flag.StringVar(&listPath, "list", "", "path to a newline-separated file of playback URLs")
	flag.StringVar(&logDir, "log-dir", ".", "directory successful.txt/failed.txt are appended to")
	flag.Parse()

	if listPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bbbbatch -list urls.txt [flags]")
		os.Exit(-1)
	}

	urls, err := readURLList(listPath)
	if err != nil {
		log.Fatalf("bbbbatch: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	failures := 0
	for _, url := range urls {
		if ctx.Err() != nil {
			log.Printf("bbbbatch: interrupted, stopping before %s", url)
			break
		}

		log.Printf("bbbbatch: starting %s", url)
		_, err := orchestrator.Run(ctx, url, cfg)
		if err != nil {
			log.Printf("bbbbatch: %s failed: %v", url, err)
			if appendErr := appendLine(logDir, "failed.txt", url); appendErr != nil {
				log.Printf("bbbbatch: could not record failure for %s: %v", url, appendErr)
			}
			failures++
			continue
		}

		if appendErr := appendLine(logDir, "successful.txt", url); appendErr != nil {
			log.Printf("bbbbatch: could not record success for %s: %v", url, appendErr)
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// appendLine opens name in logDir with O_APPEND and flushes immediately
// after each write, so a crash mid-batch never loses a prior line.
func appendLine(logDir, name, line string) error {
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	if err != nil {
		return err
	}
	return f.Sync()
}
