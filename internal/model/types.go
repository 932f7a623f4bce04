package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TextFieldCount is the number of 0xFF-delimited text fields that open
// every secure QR payload.
const TextFieldCount = 16

// SignatureLength is the size in bytes of the RSA signature that closes
// every secure QR payload.
const SignatureLength = 256

// HashLength is the size in bytes of a single mobile or email hash.
const HashLength = 32

// TextFieldNames lists the JSON names of the text fields in payload order.
// The order is fixed by the UIDAI layout and must not change.
var TextFieldNames = [TextFieldCount]string{
	"indicator", "referenceId", "name", "dob", "gender",
	"care_of", "district", "landmark", "house", "location",
	"pin_code", "post_office", "state", "street", "sub_district", "VTC",
}

// Indicator tells which of the optional mobile and email hashes are
// present at the end of a payload.
//
//	0 → neither
//	1 → mobile only
//	2 → email only
//	3 → both (mobile first, then email)
//
// Any other value is tolerated and treated like 0.
type Indicator int

const (
	// IndicatorNone means no hash precedes the signature.
	IndicatorNone Indicator = 0

	// IndicatorMobile means a single mobile hash precedes the signature.
	IndicatorMobile Indicator = 1

	// IndicatorEmail means a single email hash precedes the signature.
	IndicatorEmail Indicator = 2

	// IndicatorBoth means a mobile hash and an email hash precede the signature.
	IndicatorBoth Indicator = 3
)

// ParseIndicator converts the first text field of a payload to an Indicator.
// Surrounding whitespace is ignored. Values outside 0-3 parse successfully;
// they simply carry no hashes.
func ParseIndicator(s string) (Indicator, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid literal for indicator: %q", s)
	}
	return Indicator(n), nil
}

// HasMobile reports whether a mobile hash is present.
func (i Indicator) HasMobile() bool {
	return i == IndicatorMobile || i == IndicatorBoth
}

// HasEmail reports whether an email hash is present.
func (i Indicator) HasEmail() bool {
	return i == IndicatorEmail || i == IndicatorBoth
}

// HashBytes returns the number of hash bytes that sit between the photo
// and the signature.
func (i Indicator) HashBytes() int {
	switch i {
	case IndicatorBoth:
		return 2 * HashLength
	case IndicatorMobile, IndicatorEmail:
		return HashLength
	default:
		return 0
	}
}

// TailLength returns the number of bytes after the photo: hashes plus the
// signature.
func (i Indicator) TailLength() int {
	return SignatureLength + i.HashBytes()
}

// String returns the decimal form used inside payloads.
func (i Indicator) String() string {
	return strconv.Itoa(int(i))
}

// Record is a decoded secure QR payload.
//
// Field order matches the payload layout, and JSON output lists the
// fields in that order.
type Record struct {
	Indicator   string `json:"indicator"`
	ReferenceID string `json:"referenceId"`
	Name        string `json:"name"`
	DOB         string `json:"dob"`
	Gender      string `json:"gender"`
	CareOf      string `json:"care_of"`
	District    string `json:"district"`
	Landmark    string `json:"landmark"`
	House       string `json:"house"`
	Location    string `json:"location"`
	PinCode     string `json:"pin_code"`
	PostOffice  string `json:"post_office"`
	State       string `json:"state"`
	Street      string `json:"street"`
	SubDistrict string `json:"sub_district"`
	VTC         string `json:"VTC"`

	// Photo is the standard base64 encoding of the embedded photo bytes
	// (usually JPEG 2000).
	Photo string `json:"photo"`

	// Mobile is the hex form of the byte-reversed mobile hash, when present.
	Mobile string `json:"mobile,omitempty"`

	// Email is the hex form of the byte-reversed email hash, when present.
	Email string `json:"email,omitempty"`
}

// textFieldPtrs returns pointers to the text fields in payload order.
func (r *Record) textFieldPtrs() [TextFieldCount]*string {
	return [TextFieldCount]*string{
		&r.Indicator, &r.ReferenceID, &r.Name, &r.DOB, &r.Gender,
		&r.CareOf, &r.District, &r.Landmark, &r.House, &r.Location,
		&r.PinCode, &r.PostOffice, &r.State, &r.Street, &r.SubDistrict, &r.VTC,
	}
}

// TextFields returns the sixteen text fields in payload order.
func (r *Record) TextFields() []string {
	ptrs := r.textFieldPtrs()
	out := make([]string, 0, TextFieldCount)
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out
}

// SetTextFields assigns the text fields from a slice in payload order.
// The slice must hold exactly TextFieldCount values.
func (r *Record) SetTextFields(fields []string) error {
	if len(fields) != TextFieldCount {
		return errors.New("Unexpected number of text fields extracted.")
	}
	ptrs := r.textFieldPtrs()
	for i, p := range ptrs {
		*p = fields[i]
	}
	return nil
}

// InstanceStatus represents the lifecycle state of a service container.
type InstanceStatus string

const (
	// StatusRunning indicates the container is running.
	StatusRunning InstanceStatus = "running"

	// StatusStopped indicates the container exists but is not running.
	StatusStopped InstanceStatus = "stopped"
)

// String returns the string representation of InstanceStatus.
func (s InstanceStatus) String() string {
	return string(s)
}

// IsValid checks whether the InstanceStatus value is one of the
// predefined valid states.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusStopped:
		return true
	default:
		return false
	}
}

// ParseInstanceStatus converts a string to an InstanceStatus.
// Returns an error if the string does not match any valid status.
func ParseInstanceStatus(s string) (InstanceStatus, error) {
	status := InstanceStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid instance status: %q (valid: running, stopped)", s)
	}
	return status, nil
}

// Instance is one running (or stopped) copy of the service started by
// "secureqr image run". All fields are reconstructed from container labels
// and container state; there is no state file on disk.
type Instance struct {
	// Name is the unique instance name, also used as the container name.
	Name string `json:"name"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// HostPort is the host port published for the service port.
	HostPort int `json:"hostPort"`

	// ContainerPort is the port the service listens on inside the container.
	ContainerPort int `json:"containerPort"`

	// Status is the current lifecycle state of the container.
	Status InstanceStatus `json:"status"`

	// Container holds the Docker runtime details of the container.
	Container ContainerInfo `json:"container"`

	// CreatedAt is the timestamp when the instance was created.
	CreatedAt time.Time `json:"createdAt"`
}

// nameRegex validates instance names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid instance name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid instance name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// PortAllocation represents a host port chosen for a service container.
type PortAllocation struct {
	// InstanceName is the instance that owns this port.
	InstanceName string `json:"instanceName"`

	// ContainerPort is the port number inside the container (1-65535).
	ContainerPort int `json:"containerPort"`

	// HostPort is the port number on the host machine (1024-65535).
	HostPort int `json:"hostPort"`

	// Protocol is the network protocol for the port mapping.
	// Defaults to "tcp".
	Protocol string `json:"protocol"`
}

// Validate checks whether the PortAllocation has valid field values.
func (p *PortAllocation) Validate() error {
	if p.InstanceName == "" {
		return fmt.Errorf("port allocation: instance name must not be empty")
	}
	if p.ContainerPort < 1 || p.ContainerPort > 65535 {
		return fmt.Errorf("port allocation: container port %d out of range (1-65535)", p.ContainerPort)
	}
	if p.HostPort < 1024 || p.HostPort > 65535 {
		return fmt.Errorf("port allocation: host port %d out of range (1024-65535)", p.HostPort)
	}
	if p.Protocol == "" {
		p.Protocol = "tcp"
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return fmt.Errorf("port allocation: invalid protocol %q (valid: tcp, udp)", p.Protocol)
	}
	return nil
}

// String returns a human-readable representation of the port allocation.
// Format: "instance:containerPort → hostPort/protocol"
func (p *PortAllocation) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%s:%d → %d/%s", p.InstanceName, p.ContainerPort, p.HostPort, proto)
}

// ContainerInfo holds runtime information about a Docker container.
// This data is fetched dynamically from the Docker API, not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// Image is the image reference reported by Docker.
	Image string `json:"image"`

	// Status is the Docker container state (e.g., "running", "exited", "created").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates an image or QR payload could not be decoded.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortAllocationFailed indicates no usable port was available.
	ExitPortAllocationFailed ExitCode = 4

	// ExitGitError indicates a git query on the build context failed.
	ExitGitError ExitCode = 5

	// ExitInstanceNotFound indicates the named service instance does not exist.
	ExitInstanceNotFound ExitCode = 6

	// ExitConfigError indicates the configuration could not be loaded or is invalid.
	ExitConfigError ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
