package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// ModuleCoordinate identifies a maven module, e.g. "com.google.guava:guava:31.1-jre".
type ModuleCoordinate struct {
	Group      string
	Name       string
	Version    string
	Classifier string
	Extension  string
}

// ParseCoordinate parses "group:name:version[:classifier][@extension]".
func ParseCoordinate(s string) (ModuleCoordinate, error) {
	var c ModuleCoordinate

	body := s
	if at := strings.LastIndexByte(body, '@'); at >= 0 {
		c.Extension = body[at+1:]
		body = body[:at]
	}

	parts := strings.Split(body, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return ModuleCoordinate{}, zerr.With(ErrInvalidCoordinate, "coordinate", s)
	}
	for _, p := range parts {
		if p == "" {
			return ModuleCoordinate{}, zerr.With(ErrInvalidCoordinate, "coordinate", s)
		}
	}

	c.Group, c.Name, c.Version = parts[0], parts[1], parts[2]
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// String renders the coordinate in the same form ParseCoordinate accepts.
func (c ModuleCoordinate) String() string {
	var b strings.Builder
	b.WriteString(c.Group)
	b.WriteByte(':')
	b.WriteString(c.Name)
	b.WriteByte(':')
	b.WriteString(c.Version)
	if c.Classifier != "" {
		b.WriteByte(':')
		b.WriteString(c.Classifier)
	}
	if c.Extension != "" {
		b.WriteByte('@')
		b.WriteString(c.Extension)
	}
	return b.String()
}

// ArtifactPath returns the repository-relative path of the coordinate's artifact.
func (c ModuleCoordinate) ArtifactPath() string {
	ext := c.Extension
	if ext == "" {
		ext = "jar"
	}
	file := c.Name + "-" + c.Version
	if c.Classifier != "" {
		file += "-" + c.Classifier
	}
	return strings.ReplaceAll(c.Group, ".", "/") + "/" + c.Name + "/" + c.Version + "/" + file + "." + ext
}
