package auth

// publicPaths bypass actor resolution. Only infrastructure endpoints belong
// here; every patient route must carry an actor for the audit trail.
var publicPaths = map[string]bool{
	"/health": true,
}

// IsPublicPath reports whether path is an infrastructure endpoint that needs
// no actor.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
