// Package interface_directory indexes the interfaces of the active network
// document and owns the per-interface probe plugins.
package interface_directory

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultHTTPTimeout bounds one HTTP reachability check.
const DefaultHTTPTimeout = 5 * time.Second

// PluginFactory builds the plugin for a newly discovered interface.
type PluginFactory func(iface *Interface) InterfacePlugin

// RouteChecker reports whether iface carries a default route.
type RouteChecker func(iface string) bool

// ConfigDirectory is a Directory built from a network document.
type ConfigDirectory struct {
	mu         sync.RWMutex
	loaded     bool
	interfaces map[string]*Interface
	plugins    map[string]InterfacePlugin

	newPlugin   PluginFactory
	hasRoute    RouteChecker
	httpTimeout time.Duration
}

var _ Directory = (*ConfigDirectory)(nil)

// Option configures a ConfigDirectory.
type Option func(*ConfigDirectory)

// WithPluginFactory replaces the interface-bound probe plugins.
func WithPluginFactory(f PluginFactory) Option {
	return func(d *ConfigDirectory) {
		d.newPlugin = f
	}
}

// WithRouteChecker replaces the netlink default-route lookup.
func WithRouteChecker(f RouteChecker) Option {
	return func(d *ConfigDirectory) {
		d.hasRoute = f
	}
}

// WithHTTPTimeout sets the timeout of HTTP reachability checks.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(d *ConfigDirectory) {
		if timeout > 0 {
			d.httpTimeout = timeout
		}
	}
}

// NewConfigDirectory creates a directory and loads doc when it is not empty.
func NewConfigDirectory(doc []byte, opts ...Option) *ConfigDirectory {
	d := &ConfigDirectory{
		interfaces:  make(map[string]*Interface),
		plugins:     make(map[string]InterfacePlugin),
		hasRoute:    HasDefaultRoute,
		httpTimeout: DefaultHTTPTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.newPlugin == nil {
		d.newPlugin = func(iface *Interface) InterfacePlugin {
			return newLinkPlugin(iface.Name, iface.IsWAN(), d.httpTimeout, true)
		}
	}
	if len(doc) > 0 {
		d.Reload(doc)
	}
	return d
}

// Reload replaces the interface index with the contents of doc. Plugins of
// interfaces that keep their name and role survive so their cached status
// is not lost.
func (d *ConfigDirectory) Reload(doc []byte) {
	interfaces := ParseInterfaces(doc)

	d.mu.Lock()
	defer d.mu.Unlock()

	plugins := make(map[string]InterfacePlugin, len(interfaces))
	for name, iface := range interfaces {
		if old, ok := d.interfaces[name]; ok && old.Type == iface.Type {
			if p, ok := d.plugins[name]; ok {
				plugins[name] = p
				continue
			}
		}
		plugins[name] = d.newPlugin(iface)
	}

	d.interfaces = interfaces
	d.plugins = plugins
	d.loaded = gjson.ValidBytes(doc)

	logger.WithFields(logrus.Fields{
		"interfaces": len(interfaces),
		"wans":       len(d.namesOfType(TypeWAN)),
	}).Info("Interface directory reloaded")
}

// ParseInterfaces extracts the interfaces of a network document. Interfaces
// are grouped by section (phy, bridge, vlan, ...) and carry their role under
// meta.type.
func ParseInterfaces(doc []byte) map[string]*Interface {
	interfaces := make(map[string]*Interface)
	if !gjson.ValidBytes(doc) {
		return interfaces
	}
	gjson.GetBytes(doc, "interface").ForEach(func(section, members gjson.Result) bool {
		members.ForEach(func(name, settings gjson.Result) bool {
			if !settings.IsObject() {
				return true
			}
			wpa := settings.Get("wpaSupplicant")
			interfaces[name.String()] = &Interface{
				Name:          name.String(),
				Section:       section.String(),
				Type:          settings.Get("meta.type").String(),
				Enabled:       settings.Get("enabled").Bool(),
				WpaSupplicant: wpa.IsObject() || wpa.Bool(),
				Config:        json.RawMessage(settings.Raw),
			}
			return true
		})
		return true
	})
	return interfaces
}

// Interface returns the named interface, or nil.
func (d *ConfigDirectory) Interface(name string) *Interface {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.interfaces[name]
}

// Plugin returns the plugin of the named interface, or nil.
func (d *ConfigDirectory) Plugin(name string) InterfacePlugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.plugins[name]; ok {
		return p
	}
	return nil
}

// Routing returns nil until a network document has been loaded.
func (d *ConfigDirectory) Routing() RoutingPlugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return nil
	}
	return &netRouting{dir: d, hasRoute: d.hasRoute}
}

// Interfaces returns every interface sorted by name.
func (d *ConfigDirectory) Interfaces() []*Interface {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted(func(*Interface) bool { return true })
}

// WANs returns the uplink interfaces sorted by name.
func (d *ConfigDirectory) WANs() []*Interface {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted(func(i *Interface) bool { return i.Type == TypeWAN })
}

// LANs returns the downlink interfaces sorted by name.
func (d *ConfigDirectory) LANs() []*Interface {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted(func(i *Interface) bool { return i.Type == TypeLAN })
}

func (d *ConfigDirectory) sorted(keep func(*Interface) bool) []*Interface {
	out := []*Interface{}
	for _, iface := range d.interfaces {
		if keep(iface) {
			out = append(out, iface)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *ConfigDirectory) namesOfType(typ string) []string {
	var names []string
	for name, iface := range d.interfaces {
		if iface.Type == typ {
			names = append(names, name)
		}
	}
	return names
}
