package httpapi

import (
	"testing"

	"pcx/testutil"
)

func TestHandlersDoNotReachStorage(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImportForbidden, "handlers go through the service and the blob facade")
}
