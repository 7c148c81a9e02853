package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agent-trading-bot/internal/types"
)

var mu sync.Mutex

// TransitionEntry is one persisted audit record.
type TransitionEntry struct {
	Time       string           `json:"time"`
	Transition types.StateTransition `json:"transition"`
}

// TradeEntry is one persisted completed trade.
type TradeEntry struct {
	Time  string      `json:"time"`
	Trade types.Trade `json:"trade"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}
func transitionsFilepath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "transitions", d+".txt")
}
func tradesFilepath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "trades", d+".txt")
}

// AppendTransition appends one state transition to the daily audit file.
func AppendTransition(rec types.StateTransition) error {
	now := time.Now().UTC()
	return appendJSON(transitionsFilepath(now), TransitionEntry{
		Time:       now.Format("2006-01-02 15:04:05"),
		Transition: rec,
	})
}

// AppendTrade appends one completed trade to the daily trade file.
func AppendTrade(trade types.Trade) error {
	now := time.Now().UTC()
	return appendJSON(tradesFilepath(now), TradeEntry{
		Time:  now.Format("2006-01-02 15:04:05"),
		Trade: trade,
	})
}

func appendJSON(p string, v any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips log files older than retentionDays and removes the
// originals. Files that fail to compress are left alone.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e := os.Stat(gz); e == nil {
			_ = os.Remove(p)
			return nil
		}

		in, e := os.Open(p)
		if e != nil {
			return nil
		}
		defer in.Close()

		out, e := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e := io.Copy(gw, in); e == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
