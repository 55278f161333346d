package version

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
)

var minorRegexp = regexp.MustCompile(`^(\d+)`)

type Interface interface {
	Full() string
	MinorInt() int
}

// Get asks the API server for its version. It doubles as a connectivity check before handlers start.
func Get(log logrus.FieldLogger, client discovery.ServerVersionInterface) (Interface, error) {
	sv, err := client.ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("getting server version: %w", err)
	}

	log.Infof("kubernetes version %s.%s", sv.Major, sv.Minor)

	m, err := strconv.Atoi(minorRegexp.FindString(sv.Minor))
	if err != nil {
		return nil, fmt.Errorf("parsing minor version %q: %w", sv.Minor, err)
	}

	return &Version{v: sv, m: m}, nil
}

type Version struct {
	v *version.Info
	m int
}

func (v *Version) Full() string {
	return v.v.Major + "." + v.v.Minor
}

func (v *Version) MinorInt() int {
	return v.m
}

func (v *Version) GitVersion() string {
	return v.v.GitVersion
}
