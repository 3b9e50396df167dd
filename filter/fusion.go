package filter

import "github.com/nearkit/retrieve/errs"

// AugmentEmbedding appends a weighted one-hot encoding of categoryID to
// embedding, producing [embedding, weight*onehot(categoryID)] of length
// len(embedding)+numCategories. A standard ANN search over the augmented
// space naturally prefers same-category neighbors without any change to
// the index itself — the weight controls how strictly.
func AugmentEmbedding(embedding []float32, categoryID uint32, numCategories int, weight float32) ([]float32, error) {
	if int(categoryID) >= numCategories {
		return nil, errs.Other("category id out of range")
	}

	augmented := make([]float32, 0, len(embedding)+numCategories)
	augmented = append(augmented, embedding...)
	for i := 0; i < numCategories; i++ {
		if i == int(categoryID) {
			augmented = append(augmented, weight)
		} else {
			augmented = append(augmented, 0)
		}
	}
	return augmented, nil
}

// AugmentQuery augments a query embedding with the desired category,
// mirroring AugmentEmbedding so query and document vectors are fused
// identically.
func AugmentQuery(query []float32, desiredCategory uint32, numCategories int, weight float32) ([]float32, error) {
	return AugmentEmbedding(query, desiredCategory, numCategories, weight)
}

// ExtractOriginal strips the metadata dimensions appended by
// AugmentEmbedding, returning the first originalDim components.
func ExtractOriginal(augmented []float32, originalDim int) []float32 {
	return append([]float32(nil), augmented[:originalDim]...)
}
