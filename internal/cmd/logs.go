package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the structured logs of fanout runs.

By default, shows logs from the most recent run. Use flags to filter
and format the output.

Examples:
  # Show last 50 lines from the most recent run
  fanout logs

  # Show all logs from a specific run
  fanout logs -r 2f1c9c1a -n 0

  # Follow logs in real-time
  fanout logs -f

  # Filter by log level
  fanout logs --level warn

  # Show logs from the last hour
  fanout logs --since 1h

  # Search for specific patterns
  fanout logs --grep "retry|breaker"`,
	RunE: runLogs,
}

var (
	logsRunID  string
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsRunID, "run", "r", "", "Run ID (default: most recent)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	RunID  string         `json:"run_id,omitempty"`
	UnitID string         `json:"unit_id,omitempty"`
	Extra  map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Then unmarshal all fields to capture extras
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	// Remove known fields, keep the rest as extra
	delete(all, "time")
	delete(all, "level")
	delete(all, "msg")
	delete(all, "run_id")
	delete(all, "unit_id")

	if len(all) > 0 {
		e.Extra = all
	}

	return nil
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry) string {
	var sb strings.Builder

	// Timestamp
	sb.WriteString(colorGray)
	sb.WriteString("[")
	sb.WriteString(entry.Time.Format("15:04:05.000"))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Level with color
	sb.WriteString(" ")
	sb.WriteString(levelColor(entry.Level))
	sb.WriteString("[")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Message
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	// Context fields
	if entry.UnitID != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("unit_id=")
		sb.WriteString(entry.UnitID)
		sb.WriteString(colorReset)
	}

	// Extra fields
	for key, value := range entry.Extra {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(colorReset)
		sb.WriteString(fmt.Sprintf("%v", value))
	}

	return sb.String()
}

// runDirEntry pairs a run directory with its modification time for sorting.
type runDirEntry struct {
	id      string
	modTime time.Time
}

// listRunDirs returns run directories under the runs root, newest first.
func listRunDirs(runsRoot string) ([]runDirEntry, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []runDirEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, runDirEntry{id: entry.Name(), modTime: info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].modTime.After(runs[j].modTime)
	})
	return runs, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg := config.Get()
	runsRoot := cfg.Paths.ResolveRunDir(cwd)

	// Determine which run to use
	runID := logsRunID
	if runID == "" {
		runs, err := listRunDirs(runsRoot)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		runID = runs[0].id
	}

	// Locate the log file
	logPath := filepath.Join(runsRoot, runID, "run.log")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Printf("No logs found for run %s\n", runID)
		fmt.Println("Logs are stored at:", logPath)
		return nil
	}

	// Parse filter options
	var minLevel int = -1
	if logsLevel != "" {
		validLevel := logging.ParseLevel(logsLevel)
		minLevel = levelPriority(validLevel)
	}

	var sinceTime time.Time
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		sinceTime = time.Now().Add(-duration)
	}

	var grepRegex *regexp.Regexp
	if logsGrep != "" {
		var err error
		grepRegex, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	// Follow mode
	if logsFollow {
		return followLogs(logPath, minLevel, sinceTime, grepRegex)
	}

	// Non-follow mode: read and display logs
	return displayLogs(logPath, logsTail, minLevel, sinceTime, grepRegex)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(logPath string, tail int, minLevel int, sinceTime time.Time, grepRegex *regexp.Regexp) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			entries = append(entries, line)
			continue
		}

		// Apply filters
		if !passesFilters(&entry, minLevel, sinceTime, grepRegex) {
			continue
		}

		entries = append(entries, formatLogEntry(&entry))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	// Apply tail limit
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	// Print entries
	for _, entry := range entries {
		fmt.Println(entry)
	}

	if len(entries) == 0 {
		fmt.Println("No matching log entries found.")
	}

	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(logPath string, minLevel int, sinceTime time.Time, grepRegex *regexp.Regexp) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	// Seek to end of file
	_, err = file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Printf("Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// No new data, wait briefly and try again
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Println(line)
			continue
		}

		// Apply filters
		if !passesFilters(&entry, minLevel, sinceTime, grepRegex) {
			continue
		}

		fmt.Println(formatLogEntry(&entry))
	}
}

// passesFilters checks if a log entry passes all filter criteria
func passesFilters(entry *logEntry, minLevel int, sinceTime time.Time, grepRegex *regexp.Regexp) bool {
	// Level filter
	if minLevel >= 0 && levelPriority(entry.Level) < minLevel {
		return false
	}

	// Time filter
	if !sinceTime.IsZero() && entry.Time.Before(sinceTime) {
		return false
	}

	// Grep filter - search in message and extra fields
	if grepRegex != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !grepRegex.MatchString(searchText) {
			return false
		}
	}

	return true
}
