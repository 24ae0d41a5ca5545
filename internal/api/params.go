package api

import "net/http"

// paramsResponse is the JSON response for GET /v1/params.
type paramsResponse struct {
	Groups        []string `json:"groups"`
	GroupPrefixes []string `json:"group_prefixes"`
	EnvParams     []string `json:"env_params"`
	Names         []string `json:"names"`
}

func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeError(w, http.StatusNotFound, "no model loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, paramsResponse{
		Groups:        s.registry.Groups(),
		GroupPrefixes: s.registry.GroupPrefixes(),
		EnvParams:     s.registry.EnvParamNames(),
		Names:         s.registry.AllNames(),
	})
}
