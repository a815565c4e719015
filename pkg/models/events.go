package models

// BucketEvent is the object-store notification envelope delivered over the
// broker. Only the object key is consumed; everything else the store sends
// is ignored.
type BucketEvent struct {
	Records []BucketEventRecord `json:"Records"`
}

// BucketEventRecord is one entry in a bucket notification.
type BucketEventRecord struct {
	S3 BucketEventS3 `json:"s3"`
}

// BucketEventS3 wraps the object reference.
type BucketEventS3 struct {
	Object BucketEventObject `json:"object"`
}

// BucketEventObject carries the URL-encoded object key.
type BucketEventObject struct {
	Key string `json:"key"`
}
