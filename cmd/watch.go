// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/jakechild/gosbfl/internal/log"
)

// watchLoop re-runs doRun whenever a .go file changes under either
// project tree, mirroring the teacher's startWatcher/readWatcher
// (cmd/test.go) adapted from a single in-process store to a full
// instrument->test->rank->report pass per change.
func watchLoop(testProjectDir, projectDir string, p runParams) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 1, fmt.Errorf("gosbfl: watch: %w", err)
	}
	defer watcher.Close()

	for _, root := range uniqueDirs(testProjectDir, projectDir) {
		if err := addRecursive(watcher, root); err != nil {
			return 1, fmt.Errorf("gosbfl: watch: %w", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintln(p.output, "gosbfl: watching for changes ...")
	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return 0, nil
			}
			mask := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
			if evt.Op&mask == 0 || !strings.HasSuffix(evt.Name, ".go") {
				continue
			}
			log.Infof("gosbfl: change detected at %s, re-running", evt.Name)
			if err := doRun(testProjectDir, projectDir, p); err != nil {
				fmt.Fprintln(p.errOutput, err)
			}
			fmt.Fprintln(p.output, "gosbfl: watching for changes ...")
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0, nil
			}
			log.Warnf("gosbfl: watch error: %v", err)
		case <-stop:
			return 0, nil
		}
	}
}

func uniqueDirs(dirs ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if name := info.Name(); path != root && isIgnoredWatchDir(name) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func isIgnoredWatchDir(name string) bool {
	switch strings.ToLower(name) {
	case "bin", "obj", "coverage", ".coverage", "vendor", ".git":
		return true
	default:
		return false
	}
}
