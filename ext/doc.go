/*
Package ext contains implementation that interacts
with services outside the plugin process.
At the moment, the following is the available
implementations:
  - Bucket
    Contains implementation for GCS object storage.
  - GCP
    Contains endpoint resolution and credentials.
  - Scheduler
    Contains the Composer/Airflow and Vertex AI
    scheduling backends.
*/
package ext
