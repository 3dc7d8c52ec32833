package libvirt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
)

// DefaultSocket is the qemu:///system daemon socket.
const DefaultSocket = "/var/run/libvirt/libvirt-sock"

const defaultTimeout = 5 * time.Second

var errNotConnected = errors.New("libvirt client not connected")

type versioner interface {
	ConnectGetLibVersion() (uint64, error)
}

// Client is a connection to the local libvirt daemon. Hotplug, Networks
// and ListDomains run on it.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect dials the daemon socket. An empty socketPath means DefaultSocket
// and a zero timeout means five seconds. Close the client when done.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	l := libvirt.NewWithDialer(dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	))
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}
	return &Client{libvirt: l}, nil
}

// ConnectWithContext is Connect that gives up when ctx is done. A
// connection that completes after ctx is done is closed.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connection cancelled: %w", err)
	}

	done := make(chan struct{})
	var (
		client *Client
		err    error
	)
	go func() {
		defer close(done)
		client, err = Connect(socketPath, timeout)
	}()

	select {
	case <-done:
		return client, err
	case <-ctx.Done():
		go func() {
			<-done
			if client != nil {
				_ = client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	}
}

// Close disconnects. Closing a client twice, or one that never connected,
// is a no-op.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}
	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	return nil
}

// Libvirt exposes the raw go-libvirt connection.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Hotplug returns a device hotplug helper on this connection.
func (c *Client) Hotplug(env *device.Env, log logrus.FieldLogger) *Hotplug {
	return NewHotplug(c.libvirt, env, log)
}

// Networks returns a display network manager on this connection that
// keeps its references under stateDir.
func (c *Client) Networks(stateDir string, log logrus.FieldLogger) *Networks {
	return NewNetworks(c.libvirt, stateDir, log)
}

func (c *Client) conn() (versioner, error) {
	if c.libvirt == nil {
		return nil, errNotConnected
	}
	return c.libvirt, nil
}

// Version reports the daemon's libvirt version as major.minor.release.
func (c *Client) Version() (string, error) {
	v, err := c.conn()
	if err != nil {
		return "", err
	}
	return libVersion(v)
}

// Ping fails when the connection no longer answers.
func (c *Client) Ping() error {
	v, err := c.conn()
	if err != nil {
		return err
	}
	if _, err := v.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return nil
}

func libVersion(v versioner) (string, error) {
	n, err := v.ConnectGetLibVersion()
	if err != nil {
		return "", fmt.Errorf("failed to get libvirt version: %w", err)
	}
	return fmt.Sprintf("%d.%d.%d", n/1000000, (n/1000)%1000, n%1000), nil
}
