package dispatch

import (
	"context"
	"fmt"
	"os"

	"github.com/mattjoyce/windsurf-mcp/internal/memory"
	"github.com/mattjoyce/windsurf-mcp/internal/resource"
)

const (
	defaultLoadContextName = "default_context.json"
	defaultSaveContextName = "custom_context.json"
	defaultRole            = "user"

	msgMemoryRequired     = "Context and data are required for memory injection"
	msgCredentialRequired = "Username and password are required"
	msgContextDataMissing = "No context data provided"
	msgNoFilePath         = "No file path provided"
)

// BuildRegistry wires the fixed operation set to c. Every collaborator must be
// set.
func BuildRegistry(c Collaborators) (*Registry, error) {
	entries, err := NewHandlers(c)
	if err != nil {
		return nil, err
	}
	return NewRegistry(entries...)
}

// NewHandlers returns one Entry per known operation, bound to c.
func NewHandlers(c Collaborators) ([]Entry, error) {
	missing := map[string]bool{
		"files":     c.Files == nil,
		"memory":    c.Memory == nil,
		"query":     c.Query == nil,
		"contexts":  c.Contexts == nil,
		"resources": c.Resources == nil,
		"identity":  c.Identity == nil,
	}
	for _, name := range []string{"files", "memory", "query", "contexts", "resources", "identity"} {
		if missing[name] {
			return nil, fmt.Errorf("collaborator %q is not configured", name)
		}
	}

	h := &handlers{c: c}
	return []Entry{
		{OpExecuteCLI, bind(parseCLI, h.executeCLI)},
		{OpInjectMemory, bind(parseInjectMemory, h.injectMemory)},
		{OpQueryDatabase, bind(parseQuery, h.queryDatabase)},
		{OpRetrieveMemories, bind(parseRetrieveMemories, h.retrieveMemories)},
		{OpLoadContext, bind(parseLoadContext, h.loadContext)},
		{OpSaveContext, bind(parseSaveContext, h.saveContext)},
		{OpCheckResources, bind(parseNothing, h.checkResources)},
		{OpAllocateResources, bind(parseAllocate, h.allocateResources)},
		{OpRegisterUser, bind(parseRegisterUser, h.registerUser)},
		{OpAuthenticateUser, bind(parseCredentials, h.authenticateUser)},
	}, nil
}

// bind pairs a param parser with a typed body. A parse error short-circuits
// before the body (and so before any collaborator) runs.
func bind[R any](parse func(Params) (R, error), run func(context.Context, R) (Envelope, error)) Handler {
	return func(ctx context.Context, p Params) (Envelope, error) {
		req, err := parse(p)
		if err != nil {
			return Envelope{}, err
		}
		return run(ctx, req)
	}
}

type handlers struct {
	c Collaborators
}

// --- execute_cli ---

type cliRequest struct {
	Command string
	Args    []string
}

func parseCLI(p Params) (cliRequest, error) {
	command, err := p.String("command")
	if err != nil {
		return cliRequest{}, err
	}
	args, err := p.StringSlice("args", nil)
	if err != nil {
		return cliRequest{}, err
	}
	return cliRequest{Command: command, Args: args}, nil
}

func (h *handlers) executeCLI(ctx context.Context, req cliRequest) (Envelope, error) {
	switch req.Command {
	case "ls":
		dir := "."
		if len(req.Args) > 0 && req.Args[0] != "" {
			dir = req.Args[0]
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return Envelope{}, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return Success("", map[string]any{"result": names}), nil

	case "read_file":
		if len(req.Args) == 0 || req.Args[0] == "" {
			return Envelope{}, invalid(msgNoFilePath)
		}
		content, err := h.c.Files.ReadFile(ctx, req.Args[0])
		if err != nil {
			return Envelope{}, err
		}
		return Success("", map[string]any{"result": content}), nil

	default:
		return Envelope{}, invalid("Unsupported command: %s", req.Command)
	}
}

// --- memories ---

type injectMemoryRequest struct {
	Context string
	Data    any
	Tags    []string
}

func parseInjectMemory(p Params) (injectMemoryRequest, error) {
	contextName, err := p.String("context")
	data, hasData := p.Value("data")
	if err != nil || contextName == "" || !hasData {
		return injectMemoryRequest{}, invalid(msgMemoryRequired)
	}
	tags, err := p.StringSlice("tags", []string{})
	if err != nil {
		return injectMemoryRequest{}, err
	}
	return injectMemoryRequest{Context: contextName, Data: data, Tags: tags}, nil
}

func (h *handlers) injectMemory(ctx context.Context, req injectMemoryRequest) (Envelope, error) {
	if _, err := h.c.Memory.Inject(ctx, req.Context, req.Data, req.Tags); err != nil {
		return Envelope{}, err
	}
	return Success("Memory injected for context: "+req.Context, map[string]any{
		"details": map[string]any{
			"context": req.Context,
			"tags":    req.Tags,
		},
	}), nil
}

func parseRetrieveMemories(p Params) (string, error) {
	return p.String("tag")
}

func (h *handlers) retrieveMemories(ctx context.Context, tag string) (Envelope, error) {
	memories, err := h.c.Memory.Retrieve(ctx, tag)
	if err != nil {
		return Envelope{}, err
	}
	if memories == nil {
		memories = []memory.Memory{}
	}
	return Success("", map[string]any{
		"memories": memories,
		"count":    len(memories),
	}), nil
}

// --- query_database ---

func parseQuery(p Params) (map[string]any, error) {
	return p.Object("query", map[string]any{})
}

func (h *handlers) queryDatabase(ctx context.Context, query map[string]any) (Envelope, error) {
	result, err := h.c.Query.Execute(ctx, query)
	if err != nil {
		return Envelope{}, err
	}
	return Success("", map[string]any{"result": result}), nil
}

// --- contexts ---

func parseLoadContext(p Params) (string, error) {
	return stringOr(p, "context_name", defaultLoadContextName)
}

func (h *handlers) loadContext(ctx context.Context, name string) (Envelope, error) {
	doc, err := h.c.Contexts.Load(ctx, name)
	if err != nil {
		return Envelope{}, err
	}
	return Success("", map[string]any{"context": doc}), nil
}

type saveContextRequest struct {
	Data any
	Name string
}

func parseSaveContext(p Params) (saveContextRequest, error) {
	data, _ := p.Value("context_data")
	if !truthy(data) {
		return saveContextRequest{}, invalid(msgContextDataMissing)
	}
	name, err := stringOr(p, "context_name", defaultSaveContextName)
	if err != nil {
		return saveContextRequest{}, err
	}
	return saveContextRequest{Data: data, Name: name}, nil
}

func (h *handlers) saveContext(ctx context.Context, req saveContextRequest) (Envelope, error) {
	if err := h.c.Contexts.Save(ctx, req.Data, req.Name); err != nil {
		return Envelope{}, err
	}
	return Success("Context saved as "+req.Name, nil), nil
}

// --- resources ---

func parseNothing(Params) (struct{}, error) { return struct{}{}, nil }

func (h *handlers) checkResources(ctx context.Context, _ struct{}) (Envelope, error) {
	snapshot, err := h.c.Resources.Check(ctx)
	if err != nil {
		return Envelope{}, err
	}
	return Success("", map[string]any{"resources": snapshot}), nil
}

func parseAllocate(p Params) (resource.Requirements, error) {
	var req resource.Requirements
	if err := p.Decode("requirements", &req); err != nil {
		return resource.Requirements{}, err
	}
	return req, nil
}

func (h *handlers) allocateResources(ctx context.Context, req resource.Requirements) (Envelope, error) {
	allocation, err := h.c.Resources.Allocate(ctx, req)
	if err != nil {
		return Envelope{}, err
	}
	return Success("", map[string]any{"allocation": allocation}), nil
}

// --- identity ---

type credentials struct {
	Username string
	Password string
	Roles    []string
}

func parseCredentials(p Params) (credentials, error) {
	username, uerr := p.String("username")
	password, perr := p.String("password")
	if uerr != nil || perr != nil || username == "" || password == "" {
		return credentials{}, invalid(msgCredentialRequired)
	}
	return credentials{Username: username, Password: password}, nil
}

func parseRegisterUser(p Params) (credentials, error) {
	creds, err := parseCredentials(p)
	if err != nil {
		return credentials{}, err
	}
	creds.Roles, err = p.StringSlice("roles", []string{defaultRole})
	if err != nil {
		return credentials{}, err
	}
	return creds, nil
}

func (h *handlers) registerUser(ctx context.Context, creds credentials) (Envelope, error) {
	ok, err := h.c.Identity.Register(ctx, creds.Username, creds.Password, creds.Roles)
	if err != nil {
		return Envelope{}, err
	}
	if !ok {
		return Envelope{}, rejected("User registration failed")
	}
	return Success("User registered successfully", nil), nil
}

func (h *handlers) authenticateUser(ctx context.Context, creds credentials) (Envelope, error) {
	ok, err := h.c.Identity.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return Envelope{}, err
	}
	if !ok {
		return Envelope{}, rejected("Authentication failed")
	}
	return Success("Authentication successful", nil), nil
}

// stringOr returns the string at key, def when the key is absent or null.
func stringOr(p Params, key, def string) (string, error) {
	if _, ok := p.Value(key); !ok {
		return def, nil
	}
	return p.String(key)
}
