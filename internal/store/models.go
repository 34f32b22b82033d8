package store

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Asset is an uploaded file joined with its AI row. The ai_* fields are nil
// when no AI row exists.
type Asset struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	OriginalName       string  `json:"original_name"`
	MimeType           string  `json:"mime_type"`
	ByteSize           int64   `json:"byte_size"`
	SHA256             string  `json:"sha256"`
	StoragePath        string  `json:"storage_path"`
	StorageURL         string  `json:"storage_url"`
	ThumbPath          *string `json:"thumb_path"`
	ThumbURL           *string `json:"thumb_url"`
	Width              *int    `json:"width"`
	Height             *int    `json:"height"`
	CreatedAt          string  `json:"created_at"`
	DeletedAt          *string `json:"deleted_at"`
	TrashedStoragePath *string `json:"trashed_storage_path"`
	TrashedThumbPath   *string `json:"trashed_thumb_path"`
	AIStatus           *string `json:"ai_status"`
	AICaption          *string `json:"ai_caption"`
	AITagsJSON         *string `json:"ai_tags_json"`
	AIModelVersion     *string `json:"ai_model_version"`
	AIUpdatedAt        *string `json:"ai_updated_at"`
}

func (a Asset) Trashed() bool {
	return a.DeletedAt != nil
}

const (
	AIStatusPending    = "pending"
	AIStatusProcessing = "processing"
	AIStatusDone       = "done"
	AIStatusFailed     = "failed"
)

type AIResult struct {
	AssetID      string
	Status       string
	Caption      *string
	TagsJSON     *string
	ModelVersion *string
}

type ManualMetadata struct {
	AssetID   string   `json:"asset_id"`
	Notes     *string  `json:"notes"`
	Tags      []string `json:"tags"`
	UpdatedAt string   `json:"updated_at"`
}

type Segment struct {
	AssetID   string  `json:"asset_id"`
	Tag       string  `json:"tag"`
	SVG       *string `json:"svg"`
	BBoxJSON  *string `json:"bbox_json"`
	UpdatedAt string  `json:"updated_at"`
}

type Embedding struct {
	AssetID   string
	Model     string
	Vector    []float32
	UpdatedAt string
}

var CanvasObjectTypes = map[string]struct{}{
	"image": {},
	"text":  {},
	"shape": {},
	"group": {},
}

type CanvasObject struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Type      string   `json:"type"`
	AssetID   *string  `json:"asset_id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	ScaleX    float64  `json:"scale_x"`
	ScaleY    float64  `json:"scale_y"`
	Rotation  float64  `json:"rotation"`
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	ZIndex    int64    `json:"z_index"`
	PropsJSON *string  `json:"props_json"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type ProjectView struct {
	ProjectID string  `json:"project_id"`
	WorldX    float64 `json:"world_x"`
	WorldY    float64 `json:"world_y"`
	Zoom      float64 `json:"zoom"`
	UpdatedAt string  `json:"updated_at"`
}

type ProjectSync struct {
	ProjectID       string `json:"project_id"`
	CanvasRev       int64  `json:"canvas_rev"`
	ViewRev         int64  `json:"view_rev"`
	CanvasUpdatedAt string `json:"canvas_updated_at"`
	ViewUpdatedAt   string `json:"view_updated_at"`
}

// User is a cloud account. Only the remote store persists users.
type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	EmailVerified         bool
	VerificationToken     string
	VerificationExpiresAt *string
	CreatedAt             string
}
