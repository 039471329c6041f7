package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gend/pkg/types"
)

// client is a thin wrapper over the gend HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 0}, // streaming calls have no overall deadline
	}
}

func (c *client) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) postJSON(path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", rd)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// stream posts a generate request and copies NDJSON events to stdout,
// rendering token events as plain text when pretty is set.
func (c *client) stream(path string, body any, pretty bool) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !pretty {
			fmt.Println(line)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			fmt.Println(line)
			continue
		}
		switch ev.Type {
		case types.EventModelSelected:
			fmt.Fprintf(os.Stderr, "[%s] engine=%s reason=%s\n", ev.Type, ev.Engine, ev.Reason)
		case types.EventToken:
			fmt.Print(ev.Token)
		case types.EventComplete:
			fmt.Println()
			if ev.Result != nil && ev.Result.FinishReason != "" {
				fmt.Fprintf(os.Stderr, "[complete] engine=%s finish=%s\n", ev.Result.Engine, ev.Result.FinishReason)
			}
		case types.EventError:
			fmt.Fprintf(os.Stderr, "[error] code=%s %s\n", ev.Code, ev.Error)
		}
	}
	return sc.Err()
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er types.ErrorResponse
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return fmt.Errorf("%s (status %d)", er.Error, resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func fmtUnix(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format(time.RFC3339)
}
