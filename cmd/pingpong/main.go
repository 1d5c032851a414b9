// Command pingpong is a minimal demonstration of the xtransport
// PacketStream: one side listens, one side dials, both sides handshake
// and then exchange a single authenticated "ping"/"pong" packet (spec
// §8 scenario S1), mirroring the teacher's cmd/demo-app flag/logging
// conventions. It can run the ByteChannel adapter over either a plain
// TCP connection or a WebSocket, demonstrating that the handshake and
// PacketStream are channel-agnostic (spec §1).
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/xtransport/core/channel"
	"github.com/gosuda/xtransport/core/transport"
)

var (
	flagListen    string
	flagConnect   string
	flagPSK       string
	flagMaxSize   uint32
	flagTransport string
)

var rootCmd = &cobra.Command{
	Use:   "pingpong",
	Short: "xtransport demo: handshake over TCP or WebSocket and exchange one authenticated packet",
	RunE:  run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagListen, "listen", "", "address to listen on, e.g. :4500 (mutually exclusive with --connect)")
	flags.StringVar(&flagConnect, "connect", "", "address to dial, e.g. 127.0.0.1:4500 (mutually exclusive with --listen)")
	flags.StringVar(&flagPSK, "psk", "", "optional pre-shared key (base64, or raw UTF-8 fallback)")
	flags.Uint32Var(&flagMaxSize, "max-packet-size", transport.DefaultMaxPlaintextSize, "maximum plaintext packet size")
	flags.StringVar(&flagTransport, "transport", "tcp", "byte channel backing: tcp or ws")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute pingpong")
	}
}

func run(cmd *cobra.Command, args []string) error {
	if (flagListen == "") == (flagConnect == "") {
		return fmt.Errorf("exactly one of --listen or --connect must be set")
	}
	if flagTransport != "tcp" && flagTransport != "ws" {
		return fmt.Errorf("--transport must be tcp or ws")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []transport.Option{transport.WithMaxPlaintextSize(flagMaxSize)}
	if flagPSK != "" {
		opts = append(opts, transport.WithPSKString(flagPSK))
	}

	if flagListen != "" {
		return runListener(ctx, flagListen, opts)
	}
	return runDialer(ctx, flagConnect, opts)
}

func runListener(ctx context.Context, addr string, opts []transport.Option) error {
	var backing io.Closer
	var tr *transport.Transport
	var err error

	if flagTransport == "ws" {
		wsConn, acceptErr := acceptWebSocket(ctx, addr)
		if acceptErr != nil {
			return acceptErr
		}
		backing = wsConn
		tr, err = transport.New(ctx, channel.NewWebSocketConn(wsConn), opts...)
	} else {
		conn, acceptErr := acceptTCP(ctx, addr)
		if acceptErr != nil {
			return acceptErr
		}
		backing = conn
		tr, err = transport.New(ctx, conn, opts...)
	}
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer backing.Close()
	defer tr.Close()
	log.Info().Str("role", tr.Role().String()).Str("transport", flagTransport).Msg("handshake complete")

	reader, writer := tr.Split()

	packet, err := reader.ReadPacket(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	log.Info().Str("packet", string(packet)).Msg("received")

	if err := writer.WritePacket(ctx, []byte("pong")); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	log.Info().Msg("sent pong")
	return nil
}

func runDialer(ctx context.Context, addr string, opts []transport.Option) error {
	var backing io.Closer
	var tr *transport.Transport
	var err error

	if flagTransport == "ws" {
		url := fmt.Sprintf("ws://%s/pingpong", addr)
		wsConn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if dialErr != nil {
			return fmt.Errorf("dial websocket: %w", dialErr)
		}
		backing = wsConn
		tr, err = transport.New(ctx, channel.NewWebSocketConn(wsConn), opts...)
	} else {
		dialer := net.Dialer{}
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("dial: %w", dialErr)
		}
		backing = conn
		tr, err = transport.New(ctx, conn, opts...)
	}
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer backing.Close()
	defer tr.Close()
	log.Info().Str("addr", addr).Str("transport", flagTransport).Msg("connected")
	log.Info().Str("role", tr.Role().String()).Msg("handshake complete")

	reader, writer := tr.Split()

	if err := writer.WritePacket(ctx, []byte("ping")); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	log.Info().Msg("sent ping")

	packet, err := reader.ReadPacket(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	log.Info().Str("packet", string(packet)).Msg("received")
	return nil
}

// acceptTCP listens on addr and returns the first accepted connection.
func acceptTCP(ctx context.Context, addr string) (net.Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	log.Info().Str("addr", addr).Msg("listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	log.Info().Str("peer", conn.RemoteAddr().String()).Msg("accepted connection")
	return conn, nil
}

// acceptWebSocket serves a single WebSocket upgrade on addr and returns
// the upgraded connection, then stops serving.
func acceptWebSocket(ctx context.Context, addr string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/pingpong", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() { _ = srv.Serve(ln) }()
	log.Info().Str("addr", addr).Msg("listening for websocket upgrade")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case conn := <-connCh:
		go func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("peer", conn.RemoteAddr().String()).Msg("accepted websocket connection")
		return conn, nil
	case err := <-errCh:
		return nil, fmt.Errorf("upgrade: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
