package server

import "regexp"

var (
	blobIDRegex     = regexp.MustCompile(`^bl-[0-9a-z]{8}$`)
	analysisIDRegex = regexp.MustCompile(`^an-[0-9a-z]{8}$`)
)

func validateBlobID(id string) bool {
	return blobIDRegex.MatchString(id)
}

func validateAnalysisID(id string) bool {
	return analysisIDRegex.MatchString(id)
}

// validateArtifactID accepts the ids the artifact routes resolve: an
// analysis id or a result blob id.
func validateArtifactID(id string) bool {
	return validateAnalysisID(id) || validateBlobID(id)
}
