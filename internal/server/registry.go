package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"appforge/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Instance is one bundle being served on one port.
type Instance struct {
	BundleID string
	Dir      string
	Port     int

	server   *http.Server
	listener net.Listener
}

// URL returns the loopback address the bundle is served on.
func (i *Instance) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/", i.Port)
}

// Registry tracks running instances by port. Start and Stop for the
// same port are serialized, so replacing a bundle's server never races
// the listener it is replacing.
type Registry struct {
	basePort  int
	portRange int

	mu        sync.Mutex
	portLocks map[int]*sync.Mutex
	instances map[int]*Instance
}

// NewRegistry creates a registry deriving ports from [basePort, basePort+portRange).
func NewRegistry(basePort, portRange int) *Registry {
	return &Registry{
		basePort:  basePort,
		portRange: portRange,
		portLocks: make(map[int]*sync.Mutex),
		instances: make(map[int]*Instance),
	}
}

// Start serves a bundle directory on its deterministic port. If another
// instance already owns the port it is stopped first; the new instance
// replaces it.
func (r *Registry) Start(bundleID, dir string) (*Instance, error) {
	port := PortFor(bundleID, r.basePort, r.portRange)
	lock := r.portLock(port)
	lock.Lock()
	defer lock.Unlock()

	if prev := r.instance(port); prev != nil {
		logging.Info("replacing server on port", "port", port, "previous", prev.BundleID)
		if err := r.stopInstance(prev); err != nil {
			logging.Warn("previous server shutdown failed", "port", port, "error", err)
		}
	}

	handler, err := NewBundleHandler(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare bundle handler: %w", err)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	inst := &Instance{
		BundleID: bundleID,
		Dir:      dir,
		Port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	go func() {
		if err := inst.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("bundle server exited", "bundle", bundleID, "port", port, "error", err)
		}
	}()

	r.mu.Lock()
	r.instances[port] = inst
	r.mu.Unlock()

	logging.Info("bundle server started", "bundle", bundleID, "url", inst.URL())
	return inst, nil
}

// Stop shuts down the instance serving a bundle, if any.
func (r *Registry) Stop(bundleID string) error {
	port := PortFor(bundleID, r.basePort, r.portRange)
	lock := r.portLock(port)
	lock.Lock()
	defer lock.Unlock()

	inst := r.instance(port)
	if inst == nil || inst.BundleID != bundleID {
		return nil
	}
	return r.stopInstance(inst)
}

// StopAll shuts down every running instance.
func (r *Registry) StopAll() {
	r.mu.Lock()
	running := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		running = append(running, inst)
	}
	r.mu.Unlock()

	for _, inst := range running {
		lock := r.portLock(inst.Port)
		lock.Lock()
		if err := r.stopInstance(inst); err != nil {
			logging.Warn("server shutdown failed", "port", inst.Port, "error", err)
		}
		lock.Unlock()
	}
}

// Lookup returns the instance serving a bundle, or nil.
func (r *Registry) Lookup(bundleID string) *Instance {
	port := PortFor(bundleID, r.basePort, r.portRange)
	inst := r.instance(port)
	if inst == nil || inst.BundleID != bundleID {
		return nil
	}
	return inst
}

func (r *Registry) stopInstance(inst *Instance) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := inst.server.Shutdown(ctx)

	// Shutdown only closes listeners the Serve goroutine has already
	// registered. Close the listener directly so the port is free for
	// the replacement even when Serve has not run yet.
	if cerr := inst.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}

	r.mu.Lock()
	if r.instances[inst.Port] == inst {
		delete(r.instances, inst.Port)
	}
	r.mu.Unlock()
	return err
}

func (r *Registry) instance(port int) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[port]
}

func (r *Registry) portLock(port int) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.portLocks[port]
	if !ok {
		lock = &sync.Mutex{}
		r.portLocks[port] = lock
	}
	return lock
}
