package server

import (
	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/types"
)

func toResource[S any](kind string, rec model.Record[S]) types.Resource[S] {
	return types.Resource[S]{
		Kind:       kind,
		APIVersion: types.APIVersion,
		Metadata: types.ResourceMetadata{
			ID:        rec.ID,
			ETag:      rec.ETag(),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		},
		Spec: rec.Spec,
	}
}

func toResourceList[S any](kind string, recs []model.Record[S], total, limit, offset int) types.ResourceList[types.Resource[S]] {
	items := make([]types.Resource[S], 0, len(recs))
	for _, rec := range recs {
		items = append(items, toResource(kind, rec))
	}
	return types.ResourceList[types.Resource[S]]{
		Kind:       kind + "List",
		APIVersion: types.APIVersion,
		Metadata: types.ListMetadata{
			TotalCount: total,
			Limit:      limit,
			Offset:     offset,
		},
		Items: items,
	}
}
