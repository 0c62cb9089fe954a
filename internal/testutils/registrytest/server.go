// Package registrytest provides an in-memory Docker Registry HTTP API v2
// server for tests.
//
// Blob deletion is global: deleting a blob through any repository removes
// its content for every repository that links it.
package registrytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/bnema/courseimages/internal/adapters/dto"
	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/pkg/validation"
)

type manifestEntry struct {
	raw       []byte
	mediaType string
	blobs     []string
}

type repository struct {
	manifests map[string]manifestEntry // by digest
	tags      map[string]string        // tag -> digest
	links     map[string]struct{}      // blob digests visible in this repository
}

func newRepository() *repository {
	return &repository{
		manifests: make(map[string]manifestEntry),
		tags:      make(map[string]string),
		links:     make(map[string]struct{}),
	}
}

// Fault makes matching requests fail with Status. Times <= 0 fails forever.
type Fault struct {
	Method string
	// PathContains is matched against the request path.
	PathContains string
	Status       int
	Times        int
}

// Registry is an in-memory registry behind an httptest.Server.
type Registry struct {
	server *httptest.Server

	mu            sync.Mutex
	repos         map[string]*repository
	blobs         map[string][]byte
	uploads       map[string]string // uuid -> repository
	requests      []string
	faults        []*Fault
	username      string
	password      string
	pageSize      int
	mountDisabled bool
	omitDigest    bool
}

// Option configures the Registry.
type Option func(*Registry)

// WithBasicAuth requires HTTP basic auth on every request.
func WithBasicAuth(username, password string) Option {
	return func(r *Registry) {
		r.username = username
		r.password = password
	}
}

// WithPageSize caps catalog and tag list pages, forcing Link pagination.
func WithPageSize(n int) Option {
	return func(r *Registry) {
		r.pageSize = n
	}
}

// WithMountDisabled makes every mount request fall back to a regular
// upload session (202 Accepted).
func WithMountDisabled() Option {
	return func(r *Registry) {
		r.mountDisabled = true
	}
}

// WithoutDigestHeader omits Docker-Content-Digest from manifest responses.
func WithoutDigestHeader() Option {
	return func(r *Registry) {
		r.omitDigest = true
	}
}

// New starts a registry and stops it when the test ends.
func New(t testing.TB, opts ...Option) *Registry {
	t.Helper()

	r := &Registry{
		repos:   make(map[string]*repository),
		blobs:   make(map[string][]byte),
		uploads: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.server = httptest.NewServer(r)
	t.Cleanup(r.server.Close)
	return r
}

// Host returns host:port of the server, suitable for an insecure client.
func (r *Registry) Host() string {
	return strings.TrimPrefix(r.server.URL, "http://")
}

// URL returns the server base URL.
func (r *Registry) URL() string {
	return r.server.URL
}

// Client returns an HTTP client wired to the server.
func (r *Registry) Client() *http.Client {
	return r.server.Client()
}

// InjectFault registers a fault. Faults are checked in registration order.
func (r *Registry) InjectFault(f Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fault := f
	r.faults = append(r.faults, &fault)
}

// ClearFaults removes every registered fault.
func (r *Registry) ClearFaults() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = nil
}

// Requests returns "METHOD /path" for every request served so far.
func (r *Registry) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.requests))
	copy(out, r.requests)
	return out
}

// CountRequests counts served requests with method whose path contains fragment.
func (r *Registry) CountRequests(method, fragment string) int {
	n := 0
	for _, req := range r.Requests() {
		m, path, _ := strings.Cut(req, " ")
		if m == method && strings.Contains(path, fragment) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (r *Registry) ResetRequests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

// Image describes an image to push with Push.
type Image struct {
	Labels     map[string]string
	Entrypoint []string
	Cmd        []string
	// Layers holds the raw layer contents; identical contents share a blob.
	Layers [][]byte
	// ConfigExtra is merged into the config JSON to make configs distinct.
	ConfigExtra string
}

// Pushed reports the digests of a pushed image.
type Pushed struct {
	ManifestDigest string
	ConfigDigest   string
	LayerDigests   []string
	Manifest       []byte
	Config         []byte
}

// Push stores an image under name:tag, as a docker push would.
func (r *Registry) Push(name, tag string, img Image) Pushed {
	config := buildConfig(img)
	configDigest := digest.FromBytes(config).String()

	layerDigests := make([]string, 0, len(img.Layers))
	layerDescs := make([]descriptor, 0, len(img.Layers))
	for _, layer := range img.Layers {
		d := digest.FromBytes(layer).String()
		layerDigests = append(layerDigests, d)
		layerDescs = append(layerDescs, descriptor{
			MediaType: domain.MediaTypeLayerGzip,
			Digest:    d,
			Size:      int64(len(layer)),
		})
	}

	raw, err := json.Marshal(manifest{
		SchemaVersion: 2,
		MediaType:     domain.MediaTypeManifestV2,
		Config: descriptor{
			MediaType: domain.MediaTypeImageConfig,
			Digest:    configDigest,
			Size:      int64(len(config)),
		},
		Layers: layerDescs,
	})
	if err != nil {
		panic(fmt.Sprintf("registrytest: marshal manifest: %v", err))
	}
	manifestDigest := digest.FromBytes(raw).String()

	r.mu.Lock()
	defer r.mu.Unlock()

	repo := r.repo(name)
	r.blobs[configDigest] = config
	repo.links[configDigest] = struct{}{}
	for i, layer := range img.Layers {
		r.blobs[layerDigests[i]] = layer
		repo.links[layerDigests[i]] = struct{}{}
	}
	repo.manifests[manifestDigest] = manifestEntry{
		raw:       raw,
		mediaType: domain.MediaTypeManifestV2,
		blobs:     append([]string{configDigest}, layerDigests...),
	}
	repo.tags[tag] = manifestDigest

	return Pushed{
		ManifestDigest: manifestDigest,
		ConfigDigest:   configDigest,
		LayerDigests:   layerDigests,
		Manifest:       raw,
		Config:         config,
	}
}

// PutRawManifest stores arbitrary manifest bytes under name:tag without
// any validation and returns their digest.
func (r *Registry) PutRawManifest(name, tag string, raw []byte) string {
	d := digest.FromBytes(raw).String()

	r.mu.Lock()
	defer r.mu.Unlock()
	repo := r.repo(name)
	repo.manifests[d] = manifestEntry{raw: raw, mediaType: domain.MediaTypeManifestV2}
	repo.tags[tag] = d
	return d
}

// PutRawBlob stores arbitrary content as blob dgst, linked into name.
func (r *Registry) PutRawBlob(name, dgst string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[dgst] = content
	r.repo(name).links[dgst] = struct{}{}
}

// CreateRepository registers an empty repository in the catalog.
func (r *Registry) CreateRepository(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo(name)
}

// HasBlob reports whether the blob content still exists.
func (r *Registry) HasBlob(dgst string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blobs[dgst]
	return ok
}

// TagDigest returns the manifest digest name:tag points at.
func (r *Registry) TagDigest(name, tag string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	repo, ok := r.repos[name]
	if !ok {
		return "", false
	}
	d, ok := repo.tags[tag]
	return d, ok
}

// OpenUploads returns the number of upload sessions not yet closed.
func (r *Registry) OpenUploads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}

// BrokenManifests lists name:tag pairs whose manifest references a blob
// that no longer exists.
func (r *Registry) BrokenManifests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var broken []string
	for name, repo := range r.repos {
		for tag, d := range repo.tags {
			for _, blob := range repo.manifests[d].blobs {
				if _, ok := r.blobs[blob]; !ok {
					broken = append(broken, name+":"+tag)
					break
				}
			}
		}
	}
	sort.Strings(broken)
	return broken
}

// repo returns the named repository, creating it. Callers hold r.mu.
func (r *Registry) repo(name string) *repository {
	repo, ok := r.repos[name]
	if !ok {
		repo = newRepository()
		r.repos[name] = repo
	}
	return repo
}

// ServeHTTP implements http.Handler.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
	fault := r.matchFault(req)
	r.mu.Unlock()

	if r.username != "" {
		user, pass, ok := req.BasicAuth()
		if !ok || user != r.username || pass != r.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="registry"`)
			sendError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
	}

	if fault != nil {
		sendError(w, fault.Status, "INJECTED", "injected fault")
		return
	}

	r.route(w, req)
}

// matchFault returns the first matching fault, consuming one use. Callers hold r.mu.
func (r *Registry) matchFault(req *http.Request) *Fault {
	for i, f := range r.faults {
		if f.Method != "" && f.Method != req.Method {
			continue
		}
		if !strings.Contains(req.URL.Path, f.PathContains) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				r.faults = append(r.faults[:i], r.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}

func (r *Registry) route(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path

	switch {
	case path == "/v2/":
		w.Header().Set(domain.HeaderAPIVersion, domain.RegistryAPIVersion)
		w.WriteHeader(http.StatusOK)
	case path == "/v2/_catalog":
		r.handleCatalog(w, req)
	case strings.Contains(path, "/manifests/"):
		r.handleManifest(w, req)
	case strings.Contains(path, "/blobs/uploads/"):
		r.handleUpload(w, req)
	case strings.Contains(path, "/blobs/"):
		r.handleBlob(w, req)
	case strings.HasSuffix(path, "/tags/list"):
		r.handleTags(w, req)
	default:
		sendError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

// splitPath splits /v2/{name}/{kind}/{ref} into name and ref.
func splitPath(path, kind string) (string, string, bool) {
	rest := strings.TrimPrefix(path, "/v2/")
	idx := strings.LastIndex(rest, "/"+kind+"/")
	if idx <= 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(kind)+2:], true
}

func (r *Registry) handleCatalog(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "UNSUPPORTED", "method not allowed")
		return
	}

	r.mu.Lock()
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	page, next := r.paginate(names, req.URL.Query())
	if next != "" {
		q := url.Values{"last": {next}, "n": {strconv.Itoa(len(page))}}
		w.Header().Set("Link", fmt.Sprintf(`</v2/_catalog?%s>; rel="next"`, q.Encode()))
	}
	writeJSON(w, http.StatusOK, dto.CatalogResponse{Repositories: page})
}

func (r *Registry) handleTags(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/v2/"), "/tags/list")
	if err := validation.ValidateRepositoryName(name); err != nil {
		sendError(w, http.StatusBadRequest, "NAME_INVALID", err.Error())
		return
	}

	r.mu.Lock()
	repo, ok := r.repos[name]
	var tags []string
	if ok {
		for tag := range repo.tags {
			tags = append(tags, tag)
		}
	}
	r.mu.Unlock()

	if !ok {
		sendError(w, http.StatusNotFound, "NAME_UNKNOWN", "repository name not known to registry")
		return
	}
	sort.Strings(tags)

	page, next := r.paginate(tags, req.URL.Query())
	if next != "" {
		q := url.Values{"last": {next}, "n": {strconv.Itoa(len(page))}}
		w.Header().Set("Link", fmt.Sprintf(`</v2/%s/tags/list?%s>; rel="next"`, name, q.Encode()))
	}
	// A repository whose tags were all deleted answers "tags": null.
	writeJSON(w, http.StatusOK, dto.TagListResponse{Name: name, Tags: page})
}

// paginate returns the page after "last" and, when more entries follow, the
// last entry of the page.
func (r *Registry) paginate(all []string, q url.Values) ([]string, string) {
	if last := q.Get("last"); last != "" {
		idx := sort.SearchStrings(all, last)
		if idx < len(all) && all[idx] == last {
			idx++
		}
		all = all[idx:]
	}

	n := len(all)
	if v, err := strconv.Atoi(q.Get("n")); err == nil && v > 0 && v < n {
		n = v
	}
	if r.pageSize > 0 && r.pageSize < n {
		n = r.pageSize
	}
	if n == 0 {
		return nil, ""
	}

	page := all[:n]
	if n < len(all) {
		return page, page[n-1]
	}
	return page, ""
}

func (r *Registry) handleManifest(w http.ResponseWriter, req *http.Request) {
	name, reference, ok := splitPath(req.URL.Path, "manifests")
	if !ok {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if err := validation.ValidateRepositoryName(name); err != nil {
		sendError(w, http.StatusBadRequest, "NAME_INVALID", err.Error())
		return
	}
	if err := validation.ValidateReference(reference); err != nil {
		sendError(w, http.StatusBadRequest, "TAG_INVALID", err.Error())
		return
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		r.getManifest(w, req, name, reference)
	case http.MethodPut:
		r.putManifest(w, req, name, reference)
	case http.MethodDelete:
		r.deleteManifest(w, name, reference)
	default:
		sendError(w, http.StatusMethodNotAllowed, "UNSUPPORTED", "method not allowed")
	}
}

func (r *Registry) getManifest(w http.ResponseWriter, req *http.Request, name, reference string) {
	r.mu.Lock()
	var entry manifestEntry
	var dgst string
	found := false
	if repo, ok := r.repos[name]; ok {
		dgst = reference
		if !validation.IsDigest(reference) {
			dgst = repo.tags[reference]
		}
		entry, found = repo.manifests[dgst]
	}
	r.mu.Unlock()

	if !found {
		sendError(w, http.StatusNotFound, "MANIFEST_UNKNOWN", "manifest unknown")
		return
	}

	w.Header().Set("Content-Type", entry.mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.raw)))
	if !r.omitDigest {
		w.Header().Set(domain.HeaderContentDigest, dgst)
	}
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodGet {
		_, _ = w.Write(entry.raw)
	}
}

func (r *Registry) putManifest(w http.ResponseWriter, req *http.Request, name, reference string) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		sendError(w, http.StatusBadRequest, "MANIFEST_INVALID", err.Error())
		return
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil || m.Config.Digest == "" {
		sendError(w, http.StatusBadRequest, "MANIFEST_INVALID", "manifest invalid")
		return
	}

	blobs := []string{m.Config.Digest}
	for _, l := range m.Layers {
		blobs = append(blobs, l.Digest)
	}
	dgst := digest.FromBytes(raw).String()

	r.mu.Lock()
	defer r.mu.Unlock()

	repo := r.repos[name]
	for _, b := range blobs {
		linked := false
		if repo != nil {
			_, linked = repo.links[b]
		}
		if _, exists := r.blobs[b]; !linked || !exists {
			sendError(w, http.StatusBadRequest, "MANIFEST_BLOB_UNKNOWN", "blob unknown to registry: "+b)
			return
		}
	}

	repo = r.repo(name)
	mediaType := req.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = domain.MediaTypeManifestV2
	}
	repo.manifests[dgst] = manifestEntry{raw: raw, mediaType: mediaType, blobs: blobs}
	if !validation.IsDigest(reference) {
		repo.tags[reference] = dgst
	}

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/manifests/%s", name, dgst))
	w.Header().Set(domain.HeaderContentDigest, dgst)
	w.WriteHeader(http.StatusCreated)
}

func (r *Registry) deleteManifest(w http.ResponseWriter, name, reference string) {
	if !validation.IsDigest(reference) {
		sendError(w, http.StatusBadRequest, "UNSUPPORTED", "manifests can only be deleted by digest")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	repo, ok := r.repos[name]
	if !ok {
		sendError(w, http.StatusNotFound, "MANIFEST_UNKNOWN", "manifest unknown")
		return
	}
	if _, ok := repo.manifests[reference]; !ok {
		sendError(w, http.StatusNotFound, "MANIFEST_UNKNOWN", "manifest unknown")
		return
	}

	delete(repo.manifests, reference)
	for tag, d := range repo.tags {
		if d == reference {
			delete(repo.tags, tag)
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Registry) handleBlob(w http.ResponseWriter, req *http.Request) {
	name, dgst, ok := splitPath(req.URL.Path, "blobs")
	if !ok {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if err := validation.ValidateRepositoryName(name); err != nil {
		sendError(w, http.StatusBadRequest, "NAME_INVALID", err.Error())
		return
	}
	if err := validation.ValidateDigest(dgst); err != nil {
		sendError(w, http.StatusBadRequest, "DIGEST_INVALID", err.Error())
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.blobs[dgst]
	linked := false
	if repo, ok := r.repos[name]; ok {
		_, linked = repo.links[dgst]
	}
	if !exists || !linked {
		sendError(w, http.StatusNotFound, "BLOB_UNKNOWN", "blob unknown to registry")
		return
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Header().Set(domain.HeaderContentDigest, dgst)
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodGet {
			_, _ = w.Write(content)
		}
	case http.MethodDelete:
		delete(r.blobs, dgst)
		for _, repo := range r.repos {
			delete(repo.links, dgst)
		}
		w.Header().Set(domain.HeaderContentDigest, dgst)
		w.WriteHeader(http.StatusAccepted)
	default:
		sendError(w, http.StatusMethodNotAllowed, "UNSUPPORTED", "method not allowed")
	}
}

func (r *Registry) handleUpload(w http.ResponseWriter, req *http.Request) {
	path := strings.TrimPrefix(req.URL.Path, "/v2/")
	idx := strings.Index(path, "/blobs/uploads/")
	if idx <= 0 {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	name := path[:idx]
	session := path[idx+len("/blobs/uploads/"):]

	if err := validation.ValidateRepositoryName(name); err != nil {
		sendError(w, http.StatusBadRequest, "NAME_INVALID", err.Error())
		return
	}

	if session == "" {
		if req.Method != http.MethodPost {
			sendError(w, http.StatusMethodNotAllowed, "UNSUPPORTED", "method not allowed")
			return
		}
		r.startUpload(w, req, name)
		return
	}

	if err := validation.ValidateUUID(session); err != nil {
		sendError(w, http.StatusBadRequest, "BLOB_UPLOAD_INVALID", err.Error())
		return
	}
	if req.Method != http.MethodDelete {
		sendError(w, http.StatusMethodNotAllowed, "UNSUPPORTED", "only cancellation is supported")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.uploads[session]; !ok {
		sendError(w, http.StatusNotFound, "BLOB_UPLOAD_UNKNOWN", "blob upload unknown")
		return
	}
	delete(r.uploads, session)
	w.WriteHeader(http.StatusNoContent)
}

// startUpload handles POST /v2/{name}/blobs/uploads/, with or without a
// cross-repository mount request.
func (r *Registry) startUpload(w http.ResponseWriter, req *http.Request, name string) {
	q := req.URL.Query()
	mount, from := q.Get("mount"), q.Get("from")

	r.mu.Lock()
	defer r.mu.Unlock()

	if mount != "" && from != "" && !r.mountDisabled {
		src, ok := r.repos[from]
		_, exists := r.blobs[mount]
		if ok && exists {
			if _, linked := src.links[mount]; linked {
				r.repo(name).links[mount] = struct{}{}
				w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", name, mount))
				w.Header().Set(domain.HeaderContentDigest, mount)
				w.WriteHeader(http.StatusCreated)
				return
			}
		}
	}

	session := uuid.NewString()
	r.uploads[session] = name
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", name, session))
	w.Header().Set(domain.HeaderUploadUUID, session)
	w.Header().Set("Range", "0-0")
	w.WriteHeader(http.StatusAccepted)
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(domain.HeaderAPIVersion, domain.RegistryAPIVersion)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.RegistryErrorResponse{
		Errors: []dto.RegistryError{{Code: code, Message: message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(domain.HeaderAPIVersion, domain.RegistryAPIVersion)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
