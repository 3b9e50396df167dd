package filter

import "testing"

func TestEqualsMatchesCategory(t *testing.T) {
	metadata := Metadata{"category": uint32(1), "region": uint32(2)}
	if !Equals("category", uint32(1)).Match(metadata) {
		t.Fatal("expected category=1 to match")
	}
	if Equals("category", uint32(0)).Match(metadata) {
		t.Fatal("expected category=0 not to match")
	}
}

func TestAndRequiresAllPredicates(t *testing.T) {
	metadata := Metadata{"category": uint32(1), "region": uint32(2)}
	match := And(Equals("category", uint32(1)), Equals("region", uint32(2)))
	if !match.Match(metadata) {
		t.Fatal("expected AND of matching predicates to match")
	}
	noMatch := And(Equals("category", uint32(1)), Equals("region", uint32(0)))
	if noMatch.Match(metadata) {
		t.Fatal("expected AND with one failing predicate not to match")
	}
}

func TestOrRequiresAnyPredicate(t *testing.T) {
	metadata := Metadata{"category": uint32(1)}
	match := Or(Equals("category", uint32(0)), Equals("category", uint32(1)))
	if !match.Match(metadata) {
		t.Fatal("expected OR with one matching predicate to match")
	}
}

func TestStoreMatchesMissingDocumentNeverMatches(t *testing.T) {
	store := NewStore()
	store.Add(0, Metadata{"category": uint32(1)})
	if !store.Matches(0, Equals("category", uint32(1))) {
		t.Fatal("expected doc 0 to match")
	}
	if store.Matches(1, Equals("category", uint32(1))) {
		t.Fatal("expected nonexistent doc 1 not to match")
	}
}

func TestFacetsCountsDescending(t *testing.T) {
	store := NewStore()
	for i := uint32(0); i < 10; i++ {
		store.Add(i, Metadata{"category": uint32(1)})
	}
	for i := uint32(10); i < 15; i++ {
		store.Add(i, Metadata{"category": uint32(2)})
	}

	counts := Facets(store, "category", nil)
	if len(counts) != 2 {
		t.Fatalf("expected 2 facet values, got %d", len(counts))
	}
	if counts[0].Value != uint32(1) || counts[0].Count != 10 {
		t.Fatalf("expected category 1 with count 10 first, got %+v", counts[0])
	}
	if counts[1].Value != uint32(2) || counts[1].Count != 5 {
		t.Fatalf("expected category 2 with count 5 second, got %+v", counts[1])
	}
}

func TestFacetsFilteredRestrictsToMatchingDocs(t *testing.T) {
	store := NewStore()
	for i := uint32(0); i < 10; i++ {
		store.Add(i, Metadata{"category": uint32(1), "region": uint32(1)})
	}
	for i := uint32(10); i < 15; i++ {
		store.Add(i, Metadata{"category": uint32(2), "region": uint32(1)})
	}
	for i := uint32(15); i < 20; i++ {
		store.Add(i, Metadata{"category": uint32(1), "region": uint32(2)})
	}

	counts := Facets(store, "category", Equals("region", uint32(1)))
	if len(counts) != 2 {
		t.Fatalf("expected 2 facet values, got %d", len(counts))
	}
	if counts[0].Value != uint32(1) || counts[0].Count != 10 {
		t.Fatalf("expected category 1 with count 10 first, got %+v", counts[0])
	}
	if counts[1].Value != uint32(2) || counts[1].Count != 5 {
		t.Fatalf("expected category 2 with count 5 second, got %+v", counts[1])
	}
}

func TestAugmentAndExtractRoundTrip(t *testing.T) {
	embedding := []float32{0.1, 0.2, 0.3}
	augmented, err := AugmentEmbedding(embedding, 1, 3, 10.0)
	if err != nil {
		t.Fatalf("augment: %v", err)
	}
	if len(augmented) != 6 {
		t.Fatalf("expected length 6, got %d", len(augmented))
	}
	if augmented[3] != 0 || augmented[4] != 10.0 || augmented[5] != 0 {
		t.Fatalf("unexpected one-hot segment: %v", augmented[3:])
	}

	extracted := ExtractOriginal(augmented, 3)
	for i, v := range embedding {
		if extracted[i] != v {
			t.Fatalf("expected extracted[%d]=%f, got %f", i, v, extracted[i])
		}
	}
}

func TestAugmentRejectsOutOfRangeCategory(t *testing.T) {
	if _, err := AugmentEmbedding([]float32{0.1}, 5, 3, 1.0); err == nil {
		t.Fatal("expected error for out-of-range category id")
	}
}

func TestRangeAndComparisonPredicates(t *testing.T) {
	metadata := Metadata{"price": 42.0}
	if !Range("price", 0.0, 100.0).Match(metadata) {
		t.Fatal("expected price within range to match")
	}
	if Range("price", 50.0, 100.0).Match(metadata) {
		t.Fatal("expected price below range not to match")
	}
	if !Gt("price", 10.0).Match(metadata) {
		t.Fatal("expected Gt to match")
	}
	if Lt("price", 10.0).Match(metadata) {
		t.Fatal("expected Lt not to match")
	}
}
