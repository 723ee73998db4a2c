package services

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
)

// OriginService derives the upstream resource locator for a verified token.
// Content identifiers stay opaque: the resolver only joins them into a URL.
// Kinds hosted in the object store get presigned URLs; everything else is
// addressed against the external origin base.
// objectPresigner is the slice of MinIOService the resolver needs.
type objectPresigner interface {
	PresignedGetURL(objectName string, expiry time.Duration) (string, error)
}

type OriginService struct {
	context.DefaultService

	baseURL     string
	bucketKinds map[string]bool

	presigner objectPresigner
}

const ORIGIN_SVC = "origin_svc"

const presignExpiry = time.Hour

func (svc OriginService) Id() string {
	return ORIGIN_SVC
}

func (svc *OriginService) Configure(ctx *context.Context) error {
	svc.baseURL = os.Getenv("ORIGIN_BASE_URL")
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:9100"
	}
	svc.baseURL = strings.TrimRight(svc.baseURL, "/")

	kinds := os.Getenv("ORIGIN_BUCKET_KINDS")
	svc.bucketKinds = make(map[string]bool)
	for _, kind := range strings.Split(kinds, ",") {
		if kind = strings.TrimSpace(kind); kind != "" {
			svc.bucketKinds[kind] = true
		}
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *OriginService) Start() error {
	if len(svc.bucketKinds) > 0 {
		svc.presigner = svc.Service(MINIO_SVC).(*MinIOService)
	}
	return nil
}

// Resolve maps (kind, contentID, title) to a fetchable origin URL.
func (svc *OriginService) Resolve(kind, contentID, title string) (string, error) {
	if svc.bucketKinds[kind] {
		return svc.presigner.PresignedGetURL(fmt.Sprintf("%s/%s/%s", kind, contentID, title), presignExpiry)
	}

	return fmt.Sprintf("%s/%s/%s/%s",
		svc.baseURL,
		url.PathEscape(kind),
		url.PathEscape(contentID),
		url.PathEscape(title),
	), nil
}
