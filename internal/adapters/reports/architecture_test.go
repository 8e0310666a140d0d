package reports

import (
	"testing"

	"pcx/testutil"
)

func TestReportsDoNotReachStorage(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImportForbidden, "exports read through the service and write through the blob facade")
}
