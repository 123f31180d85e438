package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// filesystemClient implements StageClient using local filesystem storage.
//
// Resources are stored as YAML files so a repo checkout can describe a
// whole stage without a cluster:
//   - Playbooks: {basePath}/playbooks/{name}.yaml
//   - Actors:    {basePath}/actors/{name}.yaml
type filesystemClient struct {
	basePath string
}

// NewFilesystemClient creates a new filesystem-backed stage client.
func NewFilesystemClient(cfg *StageClientConfig) (StageClient, error) {
	if cfg == nil {
		cfg = &StageClientConfig{}
	}

	basePath := cfg.FilesystemPath
	if basePath == "" {
		basePath = "."
	}

	return &filesystemClient{basePath: basePath}, nil
}

// Get retrieves a resource by key (implements client.Client).
func (f *filesystemClient) Get(ctx context.Context, key types.NamespacedName, obj client.Object, opts ...client.GetOption) error {
	switch v := obj.(type) {
	case *v1alpha1.Playbook:
		playbook, err := f.GetPlaybook(ctx, key.Name)
		if err != nil {
			return err
		}
		*v = *playbook
		return nil
	case *v1alpha1.Actor:
		actor, err := f.GetActor(ctx, key.Name, key.Namespace)
		if err != nil {
			return err
		}
		*v = *actor
		return nil
	default:
		return fmt.Errorf("filesystem client does not support type %T", obj)
	}
}

// List retrieves a list of resources (implements client.Client).
func (f *filesystemClient) List(ctx context.Context, list client.ObjectList, opts ...client.ListOption) error {
	namespace := ""
	for _, opt := range opts {
		if nsOpt, ok := opt.(*client.ListOptions); ok && nsOpt.Namespace != "" {
			namespace = nsOpt.Namespace
		}
		if nsOpt, ok := opt.(client.InNamespace); ok {
			namespace = string(nsOpt)
		}
	}

	switch v := list.(type) {
	case *v1alpha1.PlaybookList:
		playbooks, err := f.ListPlaybooks(ctx)
		if err != nil {
			return err
		}
		v.Items = playbooks
		return nil
	case *v1alpha1.ActorList:
		actors, err := f.ListActors(ctx, namespace)
		if err != nil {
			return err
		}
		v.Items = actors
		return nil
	default:
		return fmt.Errorf("filesystem client does not support type %T", list)
	}
}

// Create creates a new resource (implements client.Client).
func (f *filesystemClient) Create(ctx context.Context, obj client.Object, opts ...client.CreateOption) error {
	switch v := obj.(type) {
	case *v1alpha1.Playbook:
		return f.CreatePlaybook(ctx, v)
	case *v1alpha1.Actor:
		return f.CreateActor(ctx, v)
	default:
		return fmt.Errorf("filesystem client does not support type %T", obj)
	}
}

// Update updates an existing resource (implements client.Client).
func (f *filesystemClient) Update(ctx context.Context, obj client.Object, opts ...client.UpdateOption) error {
	switch v := obj.(type) {
	case *v1alpha1.Playbook:
		return f.UpdatePlaybook(ctx, v)
	case *v1alpha1.Actor:
		return f.UpdateActor(ctx, v)
	default:
		return fmt.Errorf("filesystem client does not support type %T", obj)
	}
}

// Delete deletes a resource (implements client.Client).
func (f *filesystemClient) Delete(ctx context.Context, obj client.Object, opts ...client.DeleteOption) error {
	switch v := obj.(type) {
	case *v1alpha1.Playbook:
		return f.DeletePlaybook(ctx, v.Name)
	case *v1alpha1.Actor:
		return f.DeleteActor(ctx, v.Name, v.Namespace)
	default:
		return fmt.Errorf("filesystem client does not support type %T", obj)
	}
}

// Patch falls back to update; the filesystem has no patch semantics.
func (f *filesystemClient) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.PatchOption) error {
	return f.Update(ctx, obj)
}

// Apply is not supported in filesystem mode.
func (f *filesystemClient) Apply(ctx context.Context, obj runtime.ApplyConfiguration, opts ...client.ApplyOption) error {
	return fmt.Errorf("filesystem client does not support Apply operations with ApplyConfiguration")
}

// DeleteAllOf is not supported in filesystem mode.
func (f *filesystemClient) DeleteAllOf(ctx context.Context, obj client.Object, opts ...client.DeleteAllOfOption) error {
	return fmt.Errorf("filesystem client does not support DeleteAllOf operations")
}

// Status returns a status writer (implements client.Client).
func (f *filesystemClient) Status() client.StatusWriter {
	return &filesystemStatusWriter{client: f}
}

// SubResource returns a sub-resource client (implements client.Client).
func (f *filesystemClient) SubResource(subResource string) client.SubResourceClient {
	return &filesystemSubResourceClient{client: f}
}

// Scheme returns the scheme (implements client.Client).
func (f *filesystemClient) Scheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = v1alpha1.AddToScheme(scheme)
	return scheme
}

// RESTMapper returns a REST mapper (implements client.Client).
func (f *filesystemClient) RESTMapper() meta.RESTMapper {
	return nil
}

// GroupVersionKindFor returns the GroupVersionKind for an object.
func (f *filesystemClient) GroupVersionKindFor(obj runtime.Object) (schema.GroupVersionKind, error) {
	switch obj.(type) {
	case *v1alpha1.Playbook:
		return v1alpha1.GroupVersion.WithKind("Playbook"), nil
	case *v1alpha1.Actor:
		return v1alpha1.GroupVersion.WithKind("Actor"), nil
	default:
		return schema.GroupVersionKind{}, fmt.Errorf("unknown object type %T", obj)
	}
}

// IsObjectNamespaced returns whether the object is namespaced.
func (f *filesystemClient) IsObjectNamespaced(obj runtime.Object) (bool, error) {
	switch obj.(type) {
	case *v1alpha1.Playbook:
		return false, nil
	default:
		return true, nil
	}
}

// GetPlaybook retrieves a specific Playbook from the filesystem.
func (f *filesystemClient) GetPlaybook(ctx context.Context, name string) (*v1alpha1.Playbook, error) {
	filePath := f.playbookPath(name)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(
				schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "playbooks"},
				name,
			)
		}
		return nil, fmt.Errorf("failed to read Playbook file %s: %w", filePath, err)
	}

	var playbook v1alpha1.Playbook
	if err := yaml.Unmarshal(data, &playbook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Playbook from %s: %w", filePath, err)
	}

	if playbook.Name == "" {
		playbook.Name = name
	}

	return &playbook, nil
}

// ListPlaybooks lists all Playbooks from the filesystem.
func (f *filesystemClient) ListPlaybooks(ctx context.Context) ([]v1alpha1.Playbook, error) {
	entries, err := os.ReadDir(f.playbookDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []v1alpha1.Playbook{}, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", f.playbookDir(), err)
	}

	var playbooks []v1alpha1.Playbook
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		playbook, err := f.GetPlaybook(ctx, nameFromFileName(entry.Name()))
		if err != nil {
			// One bad file must not break the whole listing.
			logging.Error("Client", err, "Failed to load Playbook %s", entry.Name())
			continue
		}
		playbooks = append(playbooks, *playbook)
	}

	return playbooks, nil
}

// CreatePlaybook creates a new Playbook in the filesystem.
func (f *filesystemClient) CreatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error {
	filePath := f.playbookPath(playbook.Name)
	if _, err := os.Stat(filePath); err == nil {
		return errors.NewAlreadyExists(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "playbooks"},
			playbook.Name,
		)
	}

	return f.writeYAML(f.playbookDir(), filePath, playbook)
}

// UpdatePlaybook updates an existing Playbook in the filesystem.
func (f *filesystemClient) UpdatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error {
	filePath := f.playbookPath(playbook.Name)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.NewNotFound(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "playbooks"},
			playbook.Name,
		)
	}

	return f.writeYAML(f.playbookDir(), filePath, playbook)
}

// DeletePlaybook deletes a Playbook from the filesystem.
func (f *filesystemClient) DeletePlaybook(ctx context.Context, name string) error {
	filePath := f.playbookPath(name)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.NewNotFound(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "playbooks"},
			name,
		)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete Playbook file %s: %w", filePath, err)
	}
	return nil
}

// GetActor retrieves a specific Actor from the filesystem.
func (f *filesystemClient) GetActor(ctx context.Context, name, namespace string) (*v1alpha1.Actor, error) {
	filePath := f.actorPath(name)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(
				schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "actors"},
				name,
			)
		}
		return nil, fmt.Errorf("failed to read Actor file %s: %w", filePath, err)
	}

	var actor v1alpha1.Actor
	if err := yaml.Unmarshal(data, &actor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Actor from %s: %w", filePath, err)
	}

	if actor.Name == "" {
		actor.Name = name
	}
	if actor.Namespace == "" {
		actor.Namespace = namespace
	}

	return &actor, nil
}

// ListActors lists all Actors from the filesystem, filtered by namespace
// when one is given.
func (f *filesystemClient) ListActors(ctx context.Context, namespace string) ([]v1alpha1.Actor, error) {
	entries, err := os.ReadDir(f.actorDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []v1alpha1.Actor{}, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", f.actorDir(), err)
	}

	var actors []v1alpha1.Actor
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		actor, err := f.GetActor(ctx, nameFromFileName(entry.Name()), namespace)
		if err != nil {
			logging.Error("Client", err, "Failed to load Actor %s", entry.Name())
			continue
		}
		if namespace != "" && actor.Namespace != namespace {
			continue
		}
		actors = append(actors, *actor)
	}

	return actors, nil
}

// CreateActor creates a new Actor in the filesystem.
func (f *filesystemClient) CreateActor(ctx context.Context, actor *v1alpha1.Actor) error {
	filePath := f.actorPath(actor.Name)
	if _, err := os.Stat(filePath); err == nil {
		return errors.NewAlreadyExists(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "actors"},
			actor.Name,
		)
	}

	return f.writeYAML(f.actorDir(), filePath, actor)
}

// UpdateActor updates an existing Actor in the filesystem.
func (f *filesystemClient) UpdateActor(ctx context.Context, actor *v1alpha1.Actor) error {
	filePath := f.actorPath(actor.Name)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.NewNotFound(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "actors"},
			actor.Name,
		)
	}

	return f.writeYAML(f.actorDir(), filePath, actor)
}

// DeleteActor deletes an Actor from the filesystem.
func (f *filesystemClient) DeleteActor(ctx context.Context, name, namespace string) error {
	filePath := f.actorPath(name)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.NewNotFound(
			schema.GroupResource{Group: v1alpha1.GroupVersion.Group, Resource: "actors"},
			name,
		)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete Actor file %s: %w", filePath, err)
	}
	return nil
}

// UpdatePlaybookStatus updates a Playbook's status. The filesystem has no
// status subresource, so this is a whole-object write.
func (f *filesystemClient) UpdatePlaybookStatus(ctx context.Context, playbook *v1alpha1.Playbook) error {
	return f.UpdatePlaybook(ctx, playbook)
}

// UpdateActorStatus updates an Actor's status as a whole-object write.
func (f *filesystemClient) UpdateActorStatus(ctx context.Context, actor *v1alpha1.Actor) error {
	return f.UpdateActor(ctx, actor)
}

// IsKubernetesMode returns false since this is the filesystem implementation.
func (f *filesystemClient) IsKubernetesMode() bool {
	return false
}

// Close performs cleanup for the filesystem client.
func (f *filesystemClient) Close() error {
	return nil
}

// CreateEvent logs an event for the given object and appends it to the
// events log for later inspection.
func (f *filesystemClient) CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error {
	logging.Info("Client", "Event for %s/%s: %s - %s (%s)",
		obj.GetNamespace(), obj.GetName(), reason, message, eventType)

	kind := obj.GetObjectKind().GroupVersionKind().Kind
	if kind == "" {
		if gvk, err := f.GroupVersionKindFor(obj); err == nil {
			kind = gvk.Kind
		}
	}
	return f.appendEventLog(obj.GetNamespace(), obj.GetName(), kind, reason, message, eventType)
}

// appendEventLog writes one event line to {basePath}/events/events.log.
// Format: [timestamp] Kind namespace/name: Reason - Message (Type)
func (f *filesystemClient) appendEventLog(namespace, name, kind, reason, message, eventType string) error {
	eventsDir := filepath.Join(f.basePath, "events")
	if err := os.MkdirAll(eventsDir, 0755); err != nil {
		logging.Debug("Client", "Failed to create events directory: %v", err)
		return nil
	}

	line := fmt.Sprintf("[%s] %s %s/%s: %s - %s (%s)\n",
		time.Now().Format(time.RFC3339), kind, namespace, name, reason, message, eventType)

	file, err := os.OpenFile(filepath.Join(eventsDir, "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(line)
	return err
}

// Helper methods

func (f *filesystemClient) playbookDir() string {
	return filepath.Join(f.basePath, "playbooks")
}

func (f *filesystemClient) playbookPath(name string) string {
	return filepath.Join(f.playbookDir(), name+".yaml")
}

func (f *filesystemClient) actorDir() string {
	return filepath.Join(f.basePath, "actors")
}

func (f *filesystemClient) actorPath(name string) string {
	return filepath.Join(f.actorDir(), name+".yaml")
}

func (f *filesystemClient) writeYAML(dirPath, filePath string, obj interface{}) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}

	data, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object for %s: %w", filePath, err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return nil
}

func isYAMLFile(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".yml"
}

func nameFromFileName(filename string) string {
	ext := filepath.Ext(filename)
	return filename[:len(filename)-len(ext)]
}

// filesystemStatusWriter implements client.StatusWriter for the filesystem
// client. Status writes are whole-object writes.
type filesystemStatusWriter struct {
	client *filesystemClient
}

func (w *filesystemStatusWriter) Create(ctx context.Context, obj client.Object, subResource client.Object, opts ...client.SubResourceCreateOption) error {
	return w.client.Create(ctx, obj)
}

func (w *filesystemStatusWriter) Update(ctx context.Context, obj client.Object, opts ...client.SubResourceUpdateOption) error {
	return w.client.Update(ctx, obj)
}

func (w *filesystemStatusWriter) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.SubResourcePatchOption) error {
	return w.client.Patch(ctx, obj, patch)
}

func (w *filesystemStatusWriter) Apply(ctx context.Context, obj runtime.ApplyConfiguration, opts ...client.SubResourceApplyOption) error {
	return fmt.Errorf("filesystem client does not support Apply operations with ApplyConfiguration")
}

// filesystemSubResourceClient implements client.SubResourceClient for the
// filesystem client.
type filesystemSubResourceClient struct {
	client *filesystemClient
}

func (s *filesystemSubResourceClient) Get(ctx context.Context, obj client.Object, subResource client.Object, opts ...client.SubResourceGetOption) error {
	return s.client.Get(ctx, types.NamespacedName{Name: obj.GetName(), Namespace: obj.GetNamespace()}, obj)
}

func (s *filesystemSubResourceClient) Create(ctx context.Context, obj client.Object, subResource client.Object, opts ...client.SubResourceCreateOption) error {
	return s.client.Create(ctx, obj)
}

func (s *filesystemSubResourceClient) Update(ctx context.Context, obj client.Object, opts ...client.SubResourceUpdateOption) error {
	return s.client.Update(ctx, obj)
}

func (s *filesystemSubResourceClient) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.SubResourcePatchOption) error {
	return s.client.Patch(ctx, obj, patch)
}

func (s *filesystemSubResourceClient) Apply(ctx context.Context, obj runtime.ApplyConfiguration, opts ...client.SubResourceApplyOption) error {
	return fmt.Errorf("filesystem client does not support Apply operations with ApplyConfiguration")
}
