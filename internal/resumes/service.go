package resumes

import (
	"resumind/internal/inference"
	"resumind/internal/raster"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/storage/object"
	"resumind/internal/shared/util"
)

const (
	DefaultSignInPath = "/api/v1/auth/google/start"
	DefaultLogoutPath = "/api/v1/auth/logout"
	DefaultQuotaURL   = "https://platform.openai.com/usage"
)

// Service is the capability bundle the pipeline, listing and purge run
// against. Every user gets their own KV namespace.
type Service struct {
	Objects   object.ObjectStore
	KV        kv.Namespaces
	Inference inference.Service
	Converter *raster.Converter
	Records   *RecordStore
	Previews  *raster.URLRegistry

	SignInPath string
	LogoutPath string
	QuotaURL   string
}

var (
	defaultRecords   = NewRecordStore(DefaultWriteDeadline)
	defaultConverter = &raster.Converter{}
)

func (s *Service) records(userID string) kv.Store {
	return s.KV.Namespace(Namespace(userID))
}

func (s *Service) writer() *RecordStore {
	if s.Records == nil {
		return defaultRecords
	}
	return s.Records
}

func (s *Service) converter() *raster.Converter {
	if s.Converter == nil {
		return defaultConverter
	}
	return s.Converter
}

// Namespace returns the KV namespace holding a user's records.
func Namespace(userID string) string {
	return util.HashUserKey(userID)
}
