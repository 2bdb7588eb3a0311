// Package loader drives the pipeline: discover mods, order them, patch the
// host, assemble the merged code source and either run the host entry
// point or emit merged archives.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/graft/archive"
	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/config"
	"github.com/chazu/graft/enum"
	"github.com/chazu/graft/loadorder"
	"github.com/chazu/graft/manifest"
	"github.com/chazu/graft/merge"
	"github.com/chazu/graft/patch"
	"github.com/chazu/graft/vm"
)

// EngineVersion is the extension runtime version mods are checked against.
const EngineVersion = "1.4.0"

var (
	ErrNoHost  = errors.New("loader: no host archive configured")
	ErrNoEntry = errors.New("loader: no entry point configured")
	ErrStage   = errors.New("loader: stage run out of order")
)

// Context is the state threaded through the pipeline stages. Each stage
// fills in the fields later stages read.
type Context struct {
	Config  *config.Config
	Version string

	Host *codesource.MapStore
	// Mods is in discovery order until Resolve, in load order after.
	Mods     []*manifest.Descriptor
	resolved bool

	Runtime *codesource.MapStore
	Enums   *enum.Registry
	Patches *patch.Result
	// Source is the final view: runtime, mods, generated patches, host.
	Source *codesource.Source

	log commonlog.Logger
}

// New creates a pipeline context for cfg.
func New(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Context{
		Config:  cfg,
		Version: EngineVersion,
		Enums:   enum.NewRegistry(),
		log:     commonlog.GetLogger("graft.loader"),
	}
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

// Discover opens the host archive (when configured) and every mod archive
// named by the load-order list, or every *.zip of the mods directory in
// sorted order when no list is configured.
func (c *Context) Discover(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := c.Config

	if cfg.Host != "" {
		host, err := archive.Open(cfg.Host)
		if err != nil {
			return err
		}
		c.Host = host
	}

	names, err := c.archiveNames()
	if err != nil {
		return err
	}
	c.Mods = c.Mods[:0]
	for _, name := range names {
		path := filepath.Join(cfg.ModsDir, name)
		store, err := archive.Open(path)
		if err != nil {
			return err
		}
		d, err := manifest.FromStore(path, store)
		if err != nil {
			return err
		}
		if err := manifest.CheckRuntime(d, c.Version); err != nil {
			c.log.Warningf("%s", err)
		}
		c.log.Debugf("discovered mod %s (%s) in %s", d.ID, d.Name, name)
		c.Mods = append(c.Mods, d)
	}
	c.resolved = false
	c.log.Infof("discovered %d mods", len(c.Mods))
	return nil
}

func (c *Context) archiveNames() ([]string, error) {
	cfg := c.Config
	if cfg.LoadOrder != "" {
		f, err := loadorder.Load(cfg.LoadOrder)
		if err != nil {
			return nil, err
		}
		return f.List(cfg.List)
	}
	names, err := loadorder.Scan(cfg.ModsDir)
	if errors.Is(err, os.ErrNotExist) {
		c.log.Debugf("no mods directory at %s", cfg.ModsDir)
		return nil, nil
	}
	return names, err
}

// Resolve puts the discovered mods in load order.
func (c *Context) Resolve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ordered, err := manifest.Resolve(c.Mods)
	if err != nil {
		return err
	}
	c.Mods = ordered
	c.resolved = true
	return nil
}

// Patch applies every mod's declarations against the pre-patch view.
func (c *Context) Patch(ctx context.Context) error {
	if !c.resolved {
		return fmt.Errorf("%w: patch before resolve", ErrStage)
	}
	rt, err := RuntimeStore(c)
	if err != nil {
		return err
	}
	c.Runtime = rt

	base, err := c.source(nil)
	if err != nil {
		return err
	}
	res, err := patch.NewEngine(c.Enums).Apply(ctx, c.Mods, base)
	if err != nil {
		return err
	}
	c.Patches = res
	return nil
}

// Build assembles the final code source.
func (c *Context) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Patches == nil {
		return fmt.Errorf("%w: build before patch", ErrStage)
	}
	src, err := c.source(c.Patches.Generated)
	if err != nil {
		return err
	}
	c.Source = src
	return nil
}

func (c *Context) source(generated codesource.Store) (*codesource.Source, error) {
	b := codesource.NewBuilder().
		Deny(c.Config.Deny...).
		CacheSize(c.Config.CacheSize)
	if c.Runtime != nil {
		b.Runtime(c.Runtime)
	}
	for _, d := range c.Mods {
		b.Mod(d.ID, d.Store)
	}
	if generated != nil {
		b.Generated(generated)
	}
	if c.Host != nil {
		b.Host(c.Host)
	}
	return b.Build()
}

// Load runs every stage up to Build.
func (c *Context) Load(ctx context.Context) error {
	for _, stage := range []func(context.Context) error{c.Discover, c.Resolve, c.Patch, c.Build} {
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Terminal consumers
// ---------------------------------------------------------------------------

// NewVM returns a VM over the final source sharing the pipeline's enum
// registry.
func (c *Context) NewVM(natives map[string]vm.Native) (*vm.VM, error) {
	if c.Source == nil {
		return nil, fmt.Errorf("%w: run before build", ErrStage)
	}
	v := vm.New(c.Source, c.Enums)
	v.RegisterNatives(natives)
	return v, nil
}

// Run loads everything and invokes the configured entry point.
func Run(ctx context.Context, cfg *config.Config, natives map[string]vm.Native) (vm.Value, error) {
	if cfg.Host == "" {
		return nil, ErrNoHost
	}
	if cfg.Entry == "" {
		return nil, ErrNoEntry
	}
	c := New(cfg)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := c.NewVM(natives)
	if err != nil {
		return nil, err
	}
	c.log.Infof("running %s", cfg.Entry)
	return v.Run(cfg.Entry)
}

// Merge loads everything and writes merged archives to the configured
// output directory.
func Merge(ctx context.Context, cfg *config.Config) (*merge.Output, error) {
	if cfg.Host == "" {
		return nil, ErrNoHost
	}
	c := New(cfg)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	out, err := merge.Merge(c.Source, c.Mods, merge.Options{Main: cfg.Entry})
	if err != nil {
		return nil, err
	}
	if err := merge.Write(cfg.Output, out); err != nil {
		return nil, err
	}
	return out, nil
}
