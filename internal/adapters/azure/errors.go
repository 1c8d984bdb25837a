package azure

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// IsNotFound is used to determine if Azure reported the addressed resource as missing.
func IsNotFound(err error) bool {
	var azErr *azcore.ResponseError
	if !errors.As(err, &azErr) {
		return false
	}
	return azErr.StatusCode == http.StatusNotFound ||
		azErr.ErrorCode == "ResourceGroupNotFound" ||
		azErr.ErrorCode == "ResourceNotFound"
}
