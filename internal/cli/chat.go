package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/018kpmanoj/ModelZoo/internal/chat"
)

// NewChatCmd sends a message to a running daemon and streams the reply.
func NewChatCmd(opts *Options) *cobra.Command {
	var model string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat \"<message>\"",
		Short: "Send a message to the daemon and stream the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			message := args[0]
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("message cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			body := chat.Input{
				SessionID:      sessionID,
				Message:        message,
				PreferredModel: model,
			}
			url := daemonURL(cfg.Server.Addr) + "/api/chat/stream"

			if strings.EqualFold(strings.TrimSpace(cfg.Server.Transport), "ndjson") {
				return streamNDJSON(ctx, cmd, url, body)
			}
			return streamSSE(ctx, cmd, url, body)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Force a specific model id for this message")
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openStream(ctx context.Context, url string, body chat.Input) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return resp, nil
}

func streamNDJSON(ctx context.Context, cmd *cobra.Command, url string, body chat.Input) error {
	resp, err := openStream(ctx, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev chat.StreamEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func streamSSE(ctx context.Context, cmd *cobra.Command, url string, body chat.Input) error {
	resp, err := openStream(ctx, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev chat.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func renderEvent(cmd *cobra.Command, ev chat.StreamEvent) error {
	out := cmd.OutOrStdout()
	switch ev.Type {
	case chat.EventMeta:
		fmt.Fprintf(out, "[session %s, model %s]\n", ev.SessionID, ev.Model)
	case chat.EventChunk:
		fmt.Fprint(out, ev.Content)
	case chat.EventDone:
		fmt.Fprintln(out)
		if len(ev.Suggestions) > 0 {
			fmt.Fprintln(out, "\nFollow-ups:")
			for _, sg := range ev.Suggestions {
				fmt.Fprintf(out, "  - %s\n", sg)
			}
		}
	case chat.EventError:
		return fmt.Errorf("daemon error: %s", ev.Error)
	}
	return nil
}
