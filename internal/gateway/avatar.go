package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxAvatarBytes caps avatar uploads.
const MaxAvatarBytes = 5 << 20

// Avatar is a validated profile image ready for upload.
type Avatar struct {
	Data        []byte
	ContentType string
	// Ext has no leading dot, e.g. "png".
	Ext string
}

// ObjectPath returns the storage path of the avatar for userID.
func (a Avatar) ObjectPath(userID string) string {
	return fmt.Sprintf("%s/avatar.%s", userID, a.Ext)
}

// NewAvatar sniffs data and rejects anything that is not an image or is
// larger than MaxAvatarBytes.
func NewAvatar(data []byte) (Avatar, error) {
	if len(data) == 0 {
		return Avatar{}, &ValidationError{Field: "avatar", Reason: "file is empty"}
	}
	if len(data) > MaxAvatarBytes {
		return Avatar{}, &ValidationError{
			Field:  "avatar",
			Reason: fmt.Sprintf("file is %d bytes, limit is %d", len(data), MaxAvatarBytes),
		}
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Avatar{}, &ValidationError{
			Field:  "avatar",
			Reason: fmt.Sprintf("%s is not an image", mt.String()),
		}
	}

	ext := strings.TrimPrefix(mt.Extension(), ".")
	if ext == "" {
		ext = "img"
	}
	return Avatar{Data: data, ContentType: mt.String(), Ext: ext}, nil
}

// UploadAvatar validates data locally and, only if it is acceptable,
// stores it through g.
func UploadAvatar(ctx context.Context, g ProfileGateway, userID string, data []byte) (string, error) {
	if err := requireField("user id", userID); err != nil {
		return "", err
	}
	a, err := NewAvatar(data)
	if err != nil {
		return "", err
	}
	url, err := g.PutAvatar(ctx, userID, a)
	if err != nil {
		return "", fmt.Errorf("uploading avatar: %w", err)
	}
	return url, nil
}
