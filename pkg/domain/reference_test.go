package domain_test

import (
	"testing"

	"ncube/pkg/domain"
)

func TestRefSpecApplicationIDHelpers(t *testing.T) {
	ref := domain.RefSpec{
		SourceTenant: "acme", SourceApp: "widgets", SourceVersion: "1.0.0",
		SourceStatus: domain.StatusSnapshot, SourceBranch: domain.HeadBranch,
		SourceCube: "widgets.regions", SourceAxis: "region",

		HasTransform:     true,
		TransformTenant:  "acme", TransformApp: "widgets", TransformVersion: "1.0.0",
		TransformStatus:  domain.StatusSnapshot, TransformBranch: domain.HeadBranch,
		TransformCube:    "widgets.transform", TransformMethod: "toCode",
	}

	src := ref.SourceApplicationID()
	if src.Tenant != "acme" || src.App != "widgets" || src.Branch != domain.HeadBranch {
		t.Fatalf("unexpected source application id: %+v", src)
	}

	xform := ref.TransformApplicationID()
	if xform.Tenant != "acme" || xform.Branch != domain.HeadBranch {
		t.Fatalf("unexpected transform application id: %+v", xform)
	}
}
