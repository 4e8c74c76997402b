package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient は短いタイムアウトを持つHTTPクライアントを作成します。
// http.DefaultClientにはタイムアウトがないため、常にこちらを使います。
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}

// Probe は url にGETを送り、2xx以外をエラーとして返します。
// コンテナのヘルスチェック（server -healthcheck）から使います。
func Probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe %s returned %d", url, resp.StatusCode)
	}
	return nil
}
