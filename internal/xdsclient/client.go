/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package xdsclient implements a delta xDS (incremental ADS) client. It keeps
// a per-type set of known resources, dispatches decoded updates to registered
// typed handlers, ACKs or NACKs every response, and reconnects with
// exponential backoff. In on-demand mode individual resources are fetched on
// request instead of via wildcard subscription.
package xdsclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/strng"
)

// TLSConfig holds TLS settings for the xDS connection
type TLSConfig struct {
	Enabled  bool
	CertPath string
	KeyPath  string
	CAPath   string
}

// Config assembles a Client. Populate it with NewConfig, register handlers
// with WithWatchedHandler and Watch, then call Build.
type Config struct {
	// Address is the xDS server address (host:port)
	Address string

	// GatewayName is reported in the node role
	GatewayName string

	// Namespace overrides the POD_NAMESPACE environment variable when set
	Namespace string

	// OnDemand disables wildcard subscriptions for handlers that allow it
	OnDemand bool

	// Metadata is merged into the node metadata reported to the control
	// plane.
	Metadata map[string]string

	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	TLS TLSConfig

	handlers     map[strng.Str]rawHandler
	watchedTypes []strng.Str
}

// NewConfig creates a client config for the given server address and gateway
// identity.
func NewConfig(address, gatewayName, namespace string) *Config {
	return &Config{
		Address:               address,
		GatewayName:           gatewayName,
		Namespace:             namespace,
		InitialReconnectDelay: DefaultInitialReconnectDelay,
		MaxReconnectDelay:     DefaultMaxReconnectDelay,
		handlers:              map[strng.Str]rawHandler{},
	}
}

// WithWatchedHandler registers a typed handler for typeURL and subscribes to
// the type. It is a package function because Go methods cannot introduce
// type parameters.
func WithWatchedHandler[T any, PT interface {
	proto.Message
	*T
}](c *Config, typeURL string, h Handler[PT]) *Config {
	c.handlers[strng.New(typeURL)] = handlerWrapper[T, PT]{handler: h}
	return c.Watch(typeURL)
}

// Watch subscribes to typeURL without a handler. Responses for such types
// are acknowledged and logged but not applied.
func (c *Config) Watch(typeURL string) *Config {
	t := strng.New(typeURL)
	for _, existing := range c.watchedTypes {
		if existing == t {
			return c
		}
	}
	c.watchedTypes = append(c.watchedTypes, t)
	return c
}

// Build validates the config and creates a Client.
func (c *Config) Build() (*Client, error) {
	if c.Address == "" {
		return nil, fmt.Errorf("xDS server address is required")
	}
	if len(c.watchedTypes) == 0 {
		return nil, fmt.Errorf("at least one watched type is required")
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = DefaultInitialReconnectDelay
	}
	if c.MaxReconnectDelay < c.InitialReconnectDelay {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}

	// On-demand types have no initial snapshot to wait for, so only the
	// wildcard-subscribed types gate readiness.
	expect := make(map[strng.Str]struct{}, len(c.watchedTypes))
	for _, t := range c.watchedTypes {
		if c.onDemandType(t) {
			continue
		}
		expect[t] = struct{}{}
	}

	client := &Client{
		cfg:      c,
		identity: identityFromEnv(c.GatewayName, c.Namespace, c.Metadata),
		ready:    make(chan struct{}),
		expect:   expect,
		demandCh: make(chan demandRequest, demandCapacity),
		known:    map[strng.Str]map[strng.Str]struct{}{},
		pending:  map[ResourceKey][]chan struct{}{},
		state:    StateDisconnected,
	}
	client.backoff = newBackoff(c.InitialReconnectDelay, c.MaxReconnectDelay)
	if len(expect) == 0 {
		client.readyOnce.Do(func() { close(client.ready) })
	}
	return client, nil
}

// onDemandType reports whether typeURL uses per-resource subscription.
func (c *Config) onDemandType(typeURL strng.Str) bool {
	if !c.OnDemand {
		return false
	}
	h, ok := c.handlers[typeURL]
	if !ok {
		return false
	}
	return !h.noOnDemand()
}

// demandRequest asks the stream loop to subscribe to a single resource.
type demandRequest struct {
	key  ResourceKey
	done chan struct{}
}

// Client is a delta ADS client.
type Client struct {
	cfg      *Config
	identity nodeIdentity

	ready     chan struct{}
	readyOnce sync.Once

	demandCh chan demandRequest

	mu sync.Mutex
	// known tracks resource names per type across reconnects; it feeds
	// initial_resource_versions so the server can resume with a diff
	known map[strng.Str]map[strng.Str]struct{}
	// pending holds demand waiters until their resource arrives
	pending map[ResourceKey][]chan struct{}
	expect  map[strng.Str]struct{}
	state   ClientState

	connectionID int
	backoff      *backoff
}

// Ready returns a channel closed once every wildcard-subscribed type has
// been acknowledged at least once. On-demand types do not gate readiness.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// State returns the current connection state
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if s == StateConnected {
		metrics.XDSConnectionState.Set(1)
	} else {
		metrics.XDSConnectionState.Set(0)
	}
}

// Demander returns a handle for on-demand fetches, or nil when the client is
// not in on-demand mode.
func (c *Client) Demander() *Demander {
	if !c.cfg.OnDemand {
		return nil
	}
	return &Demander{client: c}
}

// Demander requests individual resources from the stream loop.
type Demander struct {
	client *Client
}

// Demand subscribes to one resource and returns a channel that closes once
// the server has answered for it (with the resource or its removal). The
// demand queue is bounded; when it is full the send blocks until the stream
// loop drains it, so backpressure reaches the caller. ctx bounds the wait.
func (d *Demander) Demand(ctx context.Context, typeURL, name string) (<-chan struct{}, error) {
	req := demandRequest{
		key: ResourceKey{
			TypeURL: strng.New(typeURL),
			Name:    strng.New(name),
		},
		done: make(chan struct{}),
	}
	select {
	case d.client.demandCh <- req:
		return req.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the client until ctx is cancelled. Every stream iteration ends
// with a termination reason; connection and stream errors back off
// exponentially while graceful teardowns reconnect immediately.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.connectionID++
		slog.InfoContext(ctx, "Starting xDS stream",
			"connection_id", c.connectionID,
			"server", c.cfg.Address,
			"node", c.identity.ID())

		err := c.runInternal(ctx)

		if ctx.Err() != nil {
			c.setState(StateStopped)
			metrics.XDSConnectionTerminationsTotal.WithLabelValues(reasonComplete).Inc()
			return ctx.Err()
		}

		reason := terminationReason(err)
		metrics.XDSConnectionTerminationsTotal.WithLabelValues(reason).Inc()
		c.setState(StateReconnecting)

		switch reason {
		case reasonConnectionError, reasonError:
			slog.WarnContext(ctx, "xDS stream failed",
				"connection_id", c.connectionID,
				"reason", reason,
				"error", err)
			if werr := c.backoff.wait(ctx); werr != nil {
				c.setState(StateStopped)
				return werr
			}
		case reasonReconnect, reasonComplete:
			slog.InfoContext(ctx, "xDS stream ended, reconnecting",
				"connection_id", c.connectionID,
				"reason", reason)
			c.backoff.reset()
		}
	}
}

// connectionError marks failures that happened before the stream was
// established, as opposed to errors on a live stream.
type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

// terminationReason classifies how a stream iteration ended.
//
// Graceful server teardowns (cancellation, deadline, draining transports)
// reset the backoff; anything else backs off exponentially.
func terminationReason(err error) string {
	if err == nil || errors.Is(err, io.EOF) {
		return reasonComplete
	}
	var ce *connectionError
	if errors.As(err, &ce) {
		return reasonConnectionError
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Canceled, codes.DeadlineExceeded:
			return reasonReconnect
		case codes.Unavailable:
			msg := s.Message()
			if strings.Contains(msg, "transport is closing") ||
				strings.Contains(msg, "received prior goaway") {
				return reasonReconnect
			}
		}
	}
	return reasonError
}

// runInternal runs one stream iteration: dial, send initial requests, then
// multiplex inbound responses and on-demand subscriptions until the stream
// breaks or ctx is cancelled.
func (c *Client) runInternal(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial()
	if err != nil {
		return &connectionError{err: fmt.Errorf("failed to connect to xDS server: %w", err)}
	}
	defer conn.Close()

	ads := discoveryv3.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := ads.DeltaAggregatedResources(ctx)
	if err != nil {
		return &connectionError{err: fmt.Errorf("failed to open delta stream: %w", err)}
	}

	for _, req := range c.initialRequests() {
		if err := stream.Send(req); err != nil {
			return &connectionError{err: fmt.Errorf("failed to send initial request: %w", err)}
		}
	}

	c.setState(StateConnected)
	defer c.setState(StateDisconnected)

	respCh := make(chan *discoveryv3.DeltaDiscoveryResponse)
	errCh := make(chan error, 1)
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case respCh <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case demand := <-c.demandCh:
			if err := c.handleDemand(ctx, stream, demand); err != nil {
				return err
			}

		case resp := <-respCh:
			ack := c.handleResponse(ctx, resp)
			if err := stream.Send(ack); err != nil {
				return fmt.Errorf("failed to send ack: %w", err)
			}

		case err := <-errCh:
			return err
		}
	}
}

// dial creates the gRPC connection, with TLS when configured.
func (c *Client) dial() (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if c.cfg.TLS.Enabled {
		tlsConfig, err := c.loadTLSConfig()
		if err != nil {
			return nil, err
		}
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	return grpc.NewClient(c.cfg.Address,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageSize)),
	)
}

// loadTLSConfig loads client certificates and the CA pool from disk
func (c *Client) loadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.cfg.TLS.CertPath, c.cfg.TLS.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(c.cfg.TLS.CAPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// initialRequests builds the per-type requests that open a stream. Known
// resource names are sent as initial_resource_versions so the server resumes
// with a diff instead of a full snapshot.
func (c *Client) initialRequests() []*discoveryv3.DeltaDiscoveryRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := c.identity.Node()
	requests := make([]*discoveryv3.DeltaDiscoveryRequest, 0, len(c.cfg.watchedTypes))
	for _, typeURL := range c.cfg.watchedTypes {
		req := &discoveryv3.DeltaDiscoveryRequest{
			TypeUrl: typeURL.String(),
			Node:    node,
		}

		known := c.known[typeURL]
		if len(known) > 0 {
			req.InitialResourceVersions = make(map[string]string, len(known))
			for name := range known {
				// Versions are not tracked; the empty version still tells
				// the server which resources we hold.
				req.InitialResourceVersions[name.String()] = ""
			}
		}

		if c.cfg.onDemandType(typeURL) {
			// Subscribe and unsubscribe the wildcard in one message: the
			// protocol idiom for starting empty. Known names ride in
			// initial_resource_versions only.
			req.ResourceNamesSubscribe = []string{WildcardResource}
			req.ResourceNamesUnsubscribe = []string{WildcardResource}
		}

		requests = append(requests, req)
	}
	return requests
}

// handleDemand registers the waiter and subscribes to the resource. A name
// that is already known is still subscribed and still queued; the server's
// answer is what wakes the waiter.
func (c *Client) handleDemand(ctx context.Context, stream discoveryv3.AggregatedDiscoveryService_DeltaAggregatedResourcesClient, demand demandRequest) error {
	c.mu.Lock()
	c.pending[demand.key] = append(c.pending[demand.key], demand.done)
	c.addKnown(demand.key.TypeURL, demand.key.Name)
	pendingCount := len(c.pending)
	c.mu.Unlock()

	metrics.XDSPendingDemands.Set(float64(pendingCount))
	slog.DebugContext(ctx, "Requesting on-demand resource",
		"type_url", demand.key.TypeURL.String(),
		"name", demand.key.Name.String())

	return stream.Send(&discoveryv3.DeltaDiscoveryRequest{
		TypeUrl:                demand.key.TypeURL.String(),
		ResourceNamesSubscribe: []string{demand.key.Name.String()},
	})
}

// addKnown records a resource name under a type. Caller holds c.mu.
func (c *Client) addKnown(typeURL, name strng.Str) {
	set, ok := c.known[typeURL]
	if !ok {
		set = map[strng.Str]struct{}{}
		c.known[typeURL] = set
	}
	set[name] = struct{}{}
}

// handleResponse dispatches one delta response to its handler and builds the
// ACK or NACK. The handler runs before bookkeeping so stores are updated
// before any demand waiter is notified.
func (c *Client) handleResponse(ctx context.Context, resp *discoveryv3.DeltaDiscoveryResponse) *discoveryv3.DeltaDiscoveryRequest {
	typeURL := strng.New(resp.GetTypeUrl())

	metrics.XDSResponsesTotal.WithLabelValues(typeURL.String()).Inc()
	metrics.XDSResourcesReceived.WithLabelValues(typeURL.String()).
		Add(float64(len(resp.GetResources())))

	slog.DebugContext(ctx, "Received delta response",
		"type_url", typeURL.String(),
		"resources", len(resp.GetResources()),
		"removed", len(resp.GetRemovedResources()),
		"nonce", resp.GetNonce())

	var rejected []RejectedConfig
	if handler, ok := c.cfg.handlers[typeURL]; ok {
		rejected = handler.handle(resp.GetResources(), resp.GetRemovedResources())
	} else {
		slog.WarnContext(ctx, "No handler registered for type, acking",
			"type_url", typeURL.String())
	}

	c.mu.Lock()
	for _, res := range resp.GetResources() {
		c.addKnown(typeURL, strng.New(res.GetName()))
	}
	if set, ok := c.known[typeURL]; ok {
		for _, name := range resp.GetRemovedResources() {
			delete(set, strng.New(name))
		}
	}

	var notify []chan struct{}
	collect := func(name string) {
		key := ResourceKey{TypeURL: typeURL, Name: strng.New(name)}
		if waiters, ok := c.pending[key]; ok {
			notify = append(notify, waiters...)
			delete(c.pending, key)
		}
	}
	for _, res := range resp.GetResources() {
		collect(res.GetName())
	}
	for _, name := range resp.GetRemovedResources() {
		collect(name)
	}
	pendingCount := len(c.pending)

	// Only an ACK counts toward readiness; a NACKed type stays expected
	// until the server delivers a snapshot every handler accepts.
	_, expecting := c.expect[typeURL]
	acked := expecting && len(rejected) == 0
	if acked {
		delete(c.expect, typeURL)
	}
	remaining := len(c.expect)
	c.mu.Unlock()

	metrics.XDSPendingDemands.Set(float64(pendingCount))
	for _, done := range notify {
		close(done)
	}

	if acked && remaining == 0 {
		c.readyOnce.Do(func() { close(c.ready) })
	}

	ack := &discoveryv3.DeltaDiscoveryRequest{
		TypeUrl:       resp.GetTypeUrl(),
		ResponseNonce: resp.GetNonce(),
	}
	if len(rejected) > 0 {
		metrics.XDSResourcesRejected.WithLabelValues(typeURL.String()).
			Add(float64(len(rejected)))
		reasons := make([]string, 0, len(rejected))
		for _, r := range rejected {
			reasons = append(reasons, r.String())
		}
		message := strings.Join(reasons, "; ")
		slog.WarnContext(ctx, "Rejected resources, nacking",
			"type_url", typeURL.String(),
			"rejected", len(rejected),
			"reason", message)
		ack.ErrorDetail = &rpcstatus.Status{
			Code:    int32(codes.Internal),
			Message: message,
		}
	}
	return ack
}
