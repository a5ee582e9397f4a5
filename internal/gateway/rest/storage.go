package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nhle/classroom/internal/gateway"
)

const avatarBucket = "avatars"

// PutAvatar uploads a to avatars/{userID}/avatar.{ext}, replacing any
// previous file, and returns a cache-busted public URL.
func (c *Client) PutAvatar(ctx context.Context, userID string, a gateway.Avatar) (string, error) {
	path := a.ObjectPath(userID)

	h := http.Header{}
	h.Set("Content-Type", a.ContentType)
	h.Set("x-upsert", "true")
	h.Set("cache-control", "max-age=0")

	_, err := c.do(ctx, request{
		op:     "put_avatar",
		method: http.MethodPost,
		path:   storagePrefix + "object/" + avatarBucket + "/" + path,
		header: h,
		raw:    a.Data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("storing avatar: %w", err)
	}
	return c.PublicURL(avatarBucket, path), nil
}

// PublicURL returns the public URL of an object with a timestamp query
// so that clients fetch the new version immediately.
func (c *Client) PublicURL(bucket, path string) string {
	return c.baseURL + storagePrefix + "object/public/" + bucket + "/" + path +
		"?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)
}
