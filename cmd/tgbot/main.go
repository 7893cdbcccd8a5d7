package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"SmartMix/internal/calc/recommend"
	"SmartMix/internal/config"
	"SmartMix/internal/dataset"
	"SmartMix/internal/logging"
)

const apiBase = "https://api.telegram.org"

type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type UpdateResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description"`
}

// Bot answers optimizer queries against the reference dataset.
type Bot struct {
	base      string
	token     string
	http      *http.Client
	ds        *dataset.Dataset
	tolerance float64
	k         int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if cfg.Bot.Token == "" {
		logging.Fatal().Msg("TOKEN_BOT missing")
	}

	ds, err := dataset.Load(cfg.Assets.DatasetPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Assets.DatasetPath).Msg("load dataset")
	}
	logging.Info().Int("rows", ds.Len()).Msg("dataset loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := &Bot{
		base:      apiBase,
		token:     cfg.Bot.Token,
		http:      &http.Client{Timeout: 30 * time.Second},
		ds:        ds,
		tolerance: cfg.Recommender.Tolerance,
		k:         cfg.Recommender.K,
	}
	b.Run(ctx)
	logging.Info().Msg("bot stopped")
}

// Run long-polls getUpdates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	offset := 0
	for ctx.Err() == nil {
		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logging.Warn().Err(err).Msg("getUpdates error")
			sleep(ctx, 2*time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			if err := b.sendMessage(ctx, u.Message.Chat.ID, b.Reply(u.Message.Text)); err != nil {
				logging.Warn().Err(err).Int64("chat", u.Message.Chat.ID).Msg("sendMessage error")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

const helpText = "/recommend <target MPa> [tolerance] - most sustainable recorded mixes near the target strength\n" +
	"/best <target MPa> [tolerance] - the single most sustainable one\n" +
	"/help - this message"

// Reply builds the answer to one chat message.
func (b *Bot) Reply(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	// "/best@SmartMixBot 40" in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/recommend", "/best":
		target, tol, err := b.parseArgs(args)
		if err != nil {
			return err.Error()
		}
		if cmd == "/best" {
			row, err := recommend.Best(b.ds, target, tol)
			if errors.Is(err, recommend.ErrNoMatch) {
				return noMatch(target, tol)
			}
			return formatRows(fmt.Sprintf("Best mix for %.1f ± %.1f MPa:", target, tol), []dataset.Row{row})
		}
		rows := recommend.Recommend(b.ds, target, tol, b.k)
		if len(rows) == 0 {
			return noMatch(target, tol)
		}
		return formatRows(fmt.Sprintf("Top %d mixes for %.1f ± %.1f MPa:", len(rows), target, tol), rows)
	default:
		return helpText
	}
}

func (b *Bot) parseArgs(args []string) (target, tol float64, err error) {
	if len(args) == 0 {
		return 0, 0, errors.New("usage: /recommend <target MPa> [tolerance]")
	}
	target, err = dataset.ParseNumber(args[0])
	if err != nil || target <= 0 {
		return 0, 0, fmt.Errorf("target must be a positive number, got %q", args[0])
	}
	tol = b.tolerance
	if len(args) > 1 {
		tol, err = dataset.ParseNumber(args[1])
		if err != nil || tol < 0 {
			return 0, 0, fmt.Errorf("tolerance must be a non-negative number, got %q", args[1])
		}
	}
	return target, tol, nil
}

func noMatch(target, tol float64) string {
	return fmt.Sprintf("No recorded mix within %.1f ± %.1f MPa.", target, tol)
}

func formatRows(title string, rows []dataset.Row) string {
	var sb strings.Builder
	sb.WriteString(title)
	for i, r := range rows {
		fmt.Fprintf(&sb, "\n%d. %s: cement %s, water %s, RCA %s%%, CS28 %s MPa, sustainability %s",
			i+1, r.MixID,
			strconv.FormatFloat(r.Design.Cement, 'f', -1, 64),
			strconv.FormatFloat(r.Design.Water, 'f', -1, 64),
			strconv.FormatFloat(r.Design.RCAPct, 'f', -1, 64),
			strconv.FormatFloat(r.CS28, 'f', -1, 64),
			strconv.FormatFloat(r.Sustainability, 'f', 4, 64))
	}
	return sb.String()
}

func (b *Bot) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.base, b.token, name)
}

func (b *Bot) getUpdates(ctx context.Context, offset int) ([]Update, error) {
	url := fmt.Sprintf("%s?timeout=20&offset=%d", b.method("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var out UpdateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram: %s", out.Description)
	}
	return out.Result, nil
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload, _ := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.method("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := b.http.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("telegram: status %d", res.StatusCode)
	}
	return nil
}
