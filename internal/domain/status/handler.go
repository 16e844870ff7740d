// Package status serves the service banner, build version information and
// the aggregated health of the southbound dependencies.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const logo = "\n\n" +
	" _   _ ______ _____     ______           _     _             _   _\n" +
	"| \\ | || ___ \\_   _|    | ___ \\         (_)   | |           | | (_)\n" +
	"|  \\| || |_/ / | |______| |_/ /___  __ _ _ ___| |_ _ __ __ _| |_ _  ___  _ __\n" +
	"| . ` ||    /  | |______|    // _ \\/ _` | / __| __| '__/ _` | __| |/ _ \\| '_ \\\n" +
	"| |\\  || |\\ \\ _| |_     | |\\ \\  __/ (_| | \\__ \\ |_| | | (_| | |_| | (_) | | | |\n" +
	"\\_| \\_/\\_| \\_|\\___/     \\_| \\_\\___|\\__, |_|___/\\__|_|  \\__,_|\\__|_|\\___/|_| |_|\n" +
	"                                    __/ |\n" +
	"                                   |___/\n"

// UpstreamHealth reports reachability of one southbound dependency.
type UpstreamHealth func(ctx context.Context) bool

// VersionInfo is the shape of the version.json file written at build time.
type VersionInfo struct {
	Version string `json:"version"`
	GitRef  string `json:"git_ref"`
}

type healthComponents struct {
	PseudonymService string `json:"pseudonym_service"`
	ReferralService  string `json:"referral_service"`
	MetadataAPI      string `json:"metadata_api"`
}

type healthReport struct {
	Status     string           `json:"status"`
	Components healthComponents `json:"components"`
}

// Handler answers the banner, version and health endpoints.
type Handler struct {
	pseudonymService UpstreamHealth
	referralService  UpstreamHealth
	metadataAPI      UpstreamHealth
	versionPath      string
	logger           zerolog.Logger
}

func NewHandler(pseudonymService, referralService, metadataAPI UpstreamHealth, versionPath string, logger zerolog.Logger) *Handler {
	if versionPath == "" {
		versionPath = "version.json"
	}
	return &Handler{
		pseudonymService: pseudonymService,
		referralService:  referralService,
		metadataAPI:      metadataAPI,
		versionPath:      versionPath,
		logger:           logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)
	e.GET("/version.json", h.VersionJSON)
	e.GET("/health", h.Health)
}

// Health probes every southbound dependency. The response is always 200;
// the overall status is ok only when all components are ok.
func (h *Handler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	components := healthComponents{
		PseudonymService: okOrError(h.pseudonymService(ctx)),
		ReferralService:  okOrError(h.referralService(ctx)),
		MetadataAPI:      okOrError(h.metadataAPI(ctx)),
	}
	healthy := components.PseudonymService == "ok" &&
		components.ReferralService == "ok" &&
		components.MetadataAPI == "ok"

	return c.JSON(http.StatusOK, healthReport{
		Status:     okOrError(healthy),
		Components: components,
	})
}

// Index prints the service banner and, when available, the build version.
func (h *Handler) Index(c echo.Context) error {
	content := logo
	info, err := h.readVersion()
	if err != nil {
		h.logger.Info().Err(err).Msg("version info could not be loaded")
		content += "\nNo version information found"
	} else {
		content += fmt.Sprintf("\nVersion: %s\nCommit: %s", info.Version, info.GitRef)
	}
	return c.String(http.StatusOK, content)
}

// VersionJSON serves the raw version file, 404 when it is absent.
func (h *Handler) VersionJSON(c echo.Context) error {
	data, err := os.ReadFile(h.versionPath)
	if err != nil {
		h.logger.Info().Err(err).Msg("version info could not be loaded")
		return c.NoContent(http.StatusNotFound)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (h *Handler) readVersion() (VersionInfo, error) {
	return ReadVersionFile(h.versionPath)
}

// ReadVersionFile parses a version.json file.
func ReadVersionFile(path string) (VersionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VersionInfo{}, err
	}
	var info VersionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

func okOrError(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "error"
}
