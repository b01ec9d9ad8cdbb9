package config

type RoutesConfig interface {
	GetLoginRoute() string
	GetDashboardRoute() string
	GetCompleteProfileRoute() string
	GetInviteRoute() string
}

type Routes struct{}

var _ RoutesConfig = Routes{}

func (Routes) GetLoginRoute() string {
	return GetEnv("ROUTE_LOGIN", "/login")
}

func (Routes) GetDashboardRoute() string {
	return GetEnv("ROUTE_DASHBOARD", "/dashboard")
}

func (Routes) GetCompleteProfileRoute() string {
	return GetEnv("ROUTE_COMPLETE_PROFILE", "/complete-profile")
}

// GetInviteRoute is where invitation links land.
func (Routes) GetInviteRoute() string {
	return GetEnv("ROUTE_ACCEPT_INVITE", "/accept-invite")
}
