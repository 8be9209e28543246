package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownClient   = errors.New("unknown_client")
	ErrUnknownRegion   = errors.New("unknown_region")
	ErrRegionRequired  = errors.New("region_required")
	ErrRegionForbidden = errors.New("region_not_supported")
)

// RegionPolicy describes how a client partitions its data.
// Implementations are Regionless and Regioned.
type RegionPolicy interface {
	regionPolicy()
}

// Regionless clients deliver a single workbook stream with no region.
type Regionless struct {
	Sender string
}

// Regioned clients deliver one workbook stream per region.
type Regioned struct {
	// Regions maps region name to the sender that delivers it.
	Regions map[string]string
}

func (Regionless) regionPolicy() {}
func (Regioned) regionPolicy()   {}

// Client is a registered data provider.
type Client struct {
	Name   string
	Policy RegionPolicy
}

// Selector identifies one ingestion stream.
type Selector struct {
	Client string
	Region *string
	Sender string
}

// Clients is an immutable snapshot of the registry.
type Clients struct {
	byName map[string]Client
}

// Names returns client names sorted case-insensitively.
func (c Clients) Names() []string {
	out := make([]string, 0, len(c.byName))
	for _, cl := range c.byName {
		out = append(out, cl.Name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// Lookup finds a client by name, ignoring case.
func (c Clients) Lookup(name string) (Client, bool) {
	cl, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return cl, ok
}

// Regions returns the sorted region names of a client. Regionless clients have none.
func (c Clients) Regions(name string) ([]string, error) {
	cl, ok := c.Lookup(name)
	if !ok {
		return nil, ErrUnknownClient
	}
	switch p := cl.Policy.(type) {
	case Regionless:
		return []string{}, nil
	case Regioned:
		out := make([]string, 0, len(p.Regions))
		for region := range p.Regions {
			out = append(out, region)
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("client %s: unsupported region policy %T", cl.Name, cl.Policy)
	}
}

// Resolve validates a (client, region) pair against the client's policy.
func (c Clients) Resolve(client, region string) (Selector, error) {
	cl, ok := c.Lookup(client)
	if !ok {
		return Selector{}, ErrUnknownClient
	}
	region = strings.TrimSpace(region)

	switch p := cl.Policy.(type) {
	case Regionless:
		if region != "" {
			return Selector{}, ErrRegionForbidden
		}
		return Selector{Client: cl.Name, Sender: p.Sender}, nil
	case Regioned:
		if region == "" {
			return Selector{}, ErrRegionRequired
		}
		for name, sender := range p.Regions {
			if strings.EqualFold(name, region) {
				r := name
				return Selector{Client: cl.Name, Region: &r, Sender: sender}, nil
			}
		}
		return Selector{}, ErrUnknownRegion
	default:
		return Selector{}, fmt.Errorf("client %s: unsupported region policy %T", cl.Name, cl.Policy)
	}
}

// Selectors lists every ingestion stream in the registry.
func (c Clients) Selectors() []Selector {
	var out []Selector
	for _, name := range c.Names() {
		cl, _ := c.Lookup(name)
		switch p := cl.Policy.(type) {
		case Regionless:
			out = append(out, Selector{Client: cl.Name, Sender: p.Sender})
		case Regioned:
			regions, _ := c.Regions(name)
			for _, region := range regions {
				r := region
				out = append(out, Selector{Client: cl.Name, Region: &r, Sender: p.Regions[region]})
			}
		}
	}
	return out
}

const clientsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["clients"],
  "properties": {
    "clients": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "sender": {"type": "string", "minLength": 1},
          "regions": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "sender"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "sender": {"type": "string", "minLength": 1}
              }
            }
          }
        },
        "oneOf": [
          {"required": ["sender"], "not": {"required": ["regions"]}},
          {"required": ["regions"], "not": {"required": ["sender"]}}
        ]
      }
    }
  }
}`

const clientsSchemaURL = "https://schemas.smallbiznis.dev/sheetseries/clients.json"

type rawRegion struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Sender string `mapstructure:"sender" yaml:"sender"`
}

type rawClient struct {
	Name    string      `mapstructure:"name" yaml:"name"`
	Sender  string      `mapstructure:"sender" yaml:"sender"`
	Regions []rawRegion `mapstructure:"regions" yaml:"regions"`
}

type rawRegistry struct {
	Clients []rawClient `mapstructure:"clients" yaml:"clients"`
}

// ClientRegistry holds the current client snapshot and swaps it on file change.
type ClientRegistry struct {
	current atomic.Value // holds Clients
	schema  *jsonschema.Schema
}

func compileClientsSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(clientsSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(clientsSchemaURL, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(clientsSchemaURL)
}

// NewClientRegistry loads the registry file named by cfg.ClientsPath and watches it.
// A missing file yields an empty registry.
func NewClientRegistry(cfg Config, log *zap.Logger) (*ClientRegistry, error) {
	schema, err := compileClientsSchema()
	if err != nil {
		return nil, fmt.Errorf("compile clients schema: %w", err)
	}
	registry := &ClientRegistry{schema: schema}
	registry.current.Store(Clients{byName: map[string]Client{}})

	path := strings.TrimSpace(cfg.ClientsPath)
	if path == "" {
		return registry, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || isNotExist(err) {
			log.Warn("client registry not found, starting empty", zap.String("path", path))
			return registry, nil
		}
		return nil, err
	}

	clients, err := registry.decode(v)
	if err != nil {
		return nil, err
	}
	registry.current.Store(clients)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := registry.decode(v)
		if err != nil {
			log.Warn("client registry reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		registry.current.Store(updated)
		log.Info("client registry reloaded", zap.String("file", e.Name), zap.Int("clients", len(updated.byName)))
	})

	return registry, nil
}

// NewStaticClientRegistry builds a registry from YAML bytes without watching.
func NewStaticClientRegistry(data []byte) (*ClientRegistry, error) {
	schema, err := compileClientsSchema()
	if err != nil {
		return nil, err
	}
	registry := &ClientRegistry{schema: schema}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := registry.validate(doc); err != nil {
		return nil, err
	}
	var raw rawRegistry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	clients, err := buildClients(raw)
	if err != nil {
		return nil, err
	}
	registry.current.Store(clients)
	return registry, nil
}

func (r *ClientRegistry) Get() Clients {
	return r.current.Load().(Clients)
}

func (r *ClientRegistry) decode(v *viper.Viper) (Clients, error) {
	if err := r.validate(map[string]any{"clients": v.Get("clients")}); err != nil {
		return Clients{}, err
	}
	var raw rawRegistry
	if err := v.Unmarshal(&raw); err != nil {
		return Clients{}, err
	}
	return buildClients(raw)
}

func (r *ClientRegistry) validate(doc any) error {
	// round trip through JSON so the validator sees plain JSON types
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode client registry: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("decode client registry: %w", err)
	}
	if err := r.schema.Validate(inst); err != nil {
		var vErr *jsonschema.ValidationError
		if errors.As(err, &vErr) {
			return fmt.Errorf("invalid client registry at /%s: %w", strings.Join(vErr.InstanceLocation, "/"), err)
		}
		return err
	}
	return nil
}

func buildClients(raw rawRegistry) (Clients, error) {
	out := Clients{byName: make(map[string]Client, len(raw.Clients))}
	for _, rc := range raw.Clients {
		name := strings.TrimSpace(rc.Name)
		key := strings.ToLower(name)
		if _, dup := out.byName[key]; dup {
			return Clients{}, fmt.Errorf("duplicate client %q", name)
		}

		client := Client{Name: name}
		if len(rc.Regions) == 0 {
			client.Policy = Regionless{Sender: strings.TrimSpace(rc.Sender)}
		} else {
			regions := make(map[string]string, len(rc.Regions))
			for _, reg := range rc.Regions {
				regionName := strings.TrimSpace(reg.Name)
				if _, dup := regions[regionName]; dup {
					return Clients{}, fmt.Errorf("client %q: duplicate region %q", name, regionName)
				}
				regions[regionName] = strings.TrimSpace(reg.Sender)
			}
			client.Policy = Regioned{Regions: regions}
		}
		out.byName[key] = client
	}
	return out, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
