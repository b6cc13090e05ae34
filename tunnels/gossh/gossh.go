// Copyright (c) 2022 Whist Technologies, Inc.

// Package gossh forwards ports with an in-process SSH client, for machines
// without an OpenSSH installation.
package gossh // import "github.com/whisthq/whist/backend/cloud-desktop/tunnels/gossh"

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/sync/errgroup"
)

// DIAL_TIMEOUT bounds a single connection attempt to the ssh server.
const DIAL_TIMEOUT = 10 * time.Second

// GoTunnel authenticates with the identity file and with the keys of the
// running ssh-agent, if any. Host keys are not checked.
type GoTunnel struct {
	Fs afero.Fs
	// Timeout is how long a failing connection is retried.
	Timeout time.Duration

	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *GoTunnel {
	return &GoTunnel{
		Fs:  afero.NewOsFs(),
		log: log,
	}
}

// authMethods returns the available authentication methods, and a function
// releasing the connection to the agent.
func (t *GoTunnel) authMethods(identityFile string) ([]ssh.AuthMethod, func(), error) {
	var methods []ssh.AuthMethod
	release := func() {}

	if identityFile != "" {
		identityFile = utils.ExpandHome(identityFile)
		t.log.Debugf("Read identity-file(%s)", identityFile)
		key, err := afero.ReadFile(t.Fs, identityFile)
		if err != nil {
			return nil, release, utils.MakeError("couldn't read identity file %s: %w", identityFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, release, utils.MakeError("couldn't parse identity file %s: %w", identityFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			t.log.Warnf("Couldn't connect to ssh-agent: %s", err)
		} else {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			release = func() { conn.Close() }
		}
	}

	if len(methods) == 0 {
		return nil, release, &types.InvalidArgumentError{Argument: "identity-file", Reason: "no identity file is specified and no ssh-agent is running"}
	}
	return methods, release, nil
}

// PortForward connects to the ssh server and listens on the local port.
// Every accepted connection is forwarded to the remote port through its own
// channel.
func (t *GoTunnel) PortForward(ctx context.Context, spec types.TunnelSpec) (types.ExitHandle, error) {
	auth, releaseAgent, err := t.authMethods(spec.IdentityFile)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DIAL_TIMEOUT,
	}
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))

	t.log.Infof("Connect to %s@%s", spec.User, addr)
	client, err := utils.Retry(ctx, t.log, t.Timeout, func() (*ssh.Client, error) {
		return ssh.Dial("tcp", addr, config)
	})
	if err != nil {
		releaseAgent()
		return nil, utils.MakeError("couldn't connect to %s: %w", addr, err)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(spec.LocalPort)))
	if err != nil {
		client.Close()
		releaseAgent()
		return nil, utils.MakeError("couldn't listen on local port %d: %w", spec.LocalPort, err)
	}

	f := &forwarder{
		client:     client,
		listener:   listener,
		remoteAddr: net.JoinHostPort("localhost", strconv.Itoa(spec.RemotePort)),
		log:        t.log,
	}
	f.group.Go(f.acceptLoop)
	t.log.Infof("Forward localhost:%d to %s:%d", spec.LocalPort, spec.Host, spec.RemotePort)

	return func(context.Context) error {
		defer releaseAgent()

		t.log.Infof("Stop port forwarding")
		var result *multierror.Error
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		if err := f.group.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	}, nil
}

type forwarder struct {
	client     *ssh.Client
	listener   net.Listener
	remoteAddr string
	group      errgroup.Group

	log *zap.SugaredLogger
}

func (f *forwarder) acceptLoop() error {
	for {
		local, err := f.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return utils.MakeError("couldn't accept connection: %w", err)
		}
		f.group.Go(func() error {
			f.serve(local)
			return nil
		})
	}
}

// serve copies bytes both ways until either side closes.
func (f *forwarder) serve(local net.Conn) {
	defer local.Close()

	remote, err := f.client.Dial("tcp", f.remoteAddr)
	if err != nil {
		f.log.Warnf("Couldn't open a channel to %s: %s", f.remoteAddr, err)
		return
	}
	defer remote.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer remote.Close()
		_, err := io.Copy(remote, local)
		return err
	})
	g.Go(func() error {
		defer local.Close()
		_, err := io.Copy(local, remote)
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		f.log.Debugf("Connection to %s closed: %s", f.remoteAddr, err)
	}
}
