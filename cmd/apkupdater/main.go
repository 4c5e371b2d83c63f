// Package main is used for the apkupdater command line client.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/apkupdater/apkupdaterd/cli"
)

const defaultSocketPath = "/run/apkupdaterd/unix.socket"

// unixClient returns an HTTP client talking to the daemon's unix socket.
func unixClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _ string, _ string) (net.Conn, error) {
				d := &net.Dialer{}

				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func main() {
	socketPath := os.Getenv("APKUPDATER_SOCKET_PATH")
	if socketPath == "" {
		socketPath = defaultSocketPath
	}

	client := unixClient(socketPath)

	cmd := cli.NewCommand(&cli.Args{
		DefaultListFormat: "table",
		DoHTTP: func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = "apkupdaterd"

			return client.Do(req)
		},
	})

	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
