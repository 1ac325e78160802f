// Package broker holds the MQTT client plumbing shared by the console's
// message tests and the slave agent.
package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TLSPort is the broker port on which connections use TLS.
const TLSPort = 8883

// ErrTimeout is returned when a broker operation does not complete in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Endpoint identifies a broker and the credentials of one client.
type Endpoint struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
}

// URL returns the broker URL, tls:// on TLSPort and tcp:// otherwise.
func (e Endpoint) URL() string {
	scheme := "tcp"
	if e.Port == TLSPort {
		scheme = "tls"
	}
	return scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ClientOptions builds paho options for a clean-session client. TLS
// certificates are not verified on TLSPort; benchmark brokers usually run
// self-signed certificates.
func ClientOptions(e Endpoint, keepAlive, connectTimeout time.Duration) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(e.URL()).
		SetClientID(e.ClientID).
		SetUsername(e.Username).
		SetPassword(e.Password).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout)
	if e.Port == TLSPort {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return opts
}

// Wait blocks until token completes, ctx is done or timeout elapses.
// A zero timeout waits for ctx only.
func Wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrTimeout
	}
}

// Connect starts a connection and waits for it.
func Connect(ctx context.Context, client mqtt.Client, timeout time.Duration) error {
	if err := Wait(ctx, client.Connect(), timeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}
