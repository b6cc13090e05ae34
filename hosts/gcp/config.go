// Copyright (c) 2022 Whist Technologies, Inc.

package gcp

const (
	// DefaultAPIBase prefixes the disk type URLs of restored disks.
	DefaultAPIBase = "https://www.googleapis.com/compute/v1"

	// The network every instance is attached to.
	DEFAULT_NETWORK = "global/networks/default"

	// The name of the access config which gives instances a public address.
	EXTERNAL_NAT = "External NAT"

	// The status of a finished zonal operation.
	OPERATION_DONE = "DONE"
)

// Options are the settings the GCE backend is initialized with.
type Options struct {
	// Project defaults to the project of the credentials.
	Project string
	// Zone is where instances are created and looked up.
	Zone string
	// CredentialsFile is a service account key. Application default
	// credentials are used when it is empty.
	CredentialsFile string
	// APIBase defaults to DefaultAPIBase.
	APIBase string
}
