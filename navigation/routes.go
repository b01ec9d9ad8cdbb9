package navigation

import "strings"

// Default route paths. Deployments override them through configuration.
const (
	RouteLogin           = "/login"
	RouteDashboard       = "/dashboard"
	RouteCompleteProfile = "/complete-profile"
)

// Routes are the three well known destinations the console redirects between.
type Routes struct {
	Login           string
	Dashboard       string
	CompleteProfile string
}

func DefaultRoutes() Routes {
	return Routes{
		Login:           RouteLogin,
		Dashboard:       RouteDashboard,
		CompleteProfile: RouteCompleteProfile,
	}
}

// IsCompleteProfile reports whether path points at the completion form,
// ignoring any query string, fragment or trailing slash.
func (r Routes) IsCompleteProfile(path string) bool {
	return SamePath(path, r.CompleteProfile)
}

// SamePath compares two locations by path only.
func SamePath(a, b string) bool {
	return cleanPath(a) == cleanPath(b)
}

func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
